package epubslice

import "strings"

// extractMetadata converts the raw OPF metadata into the public Metadata struct.
func extractMetadata(opf *opfPackage) Metadata {
	md := Metadata{Version: opf.Version}
	om := &opf.Metadata

	md.Title = firstValue(om.Titles)
	md.Language = firstValue(om.Languages)

	for _, c := range om.Creators {
		if v := strings.TrimSpace(c.Value); v != "" {
			md.Authors = append(md.Authors, v)
		}
	}

	// The unique-identifier attribute names the dc:identifier to use;
	// fall back to the first one.
	for _, id := range om.Identifiers {
		if opf.UniqueIdentifier != "" && id.ID == opf.UniqueIdentifier {
			md.Identifier = strings.TrimSpace(id.Value)
			break
		}
	}
	if md.Identifier == "" {
		md.Identifier = firstValue(om.Identifiers)
	}

	return md
}

func firstValue(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
