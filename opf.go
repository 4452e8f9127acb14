package epubslice

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// opfPackage is the subset of the OPF <package> document needed to order
// the book's documents and locate its navigation.
type opfPackage struct {
	XMLName          xml.Name `xml:"package"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Metadata         struct {
		Titles      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
		Creators    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
		Languages   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
		Identifiers []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	} `xml:"metadata"`
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfDCElement struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// parseOPF parses the OPF file content. A missing version defaults to 2.0.
func parseOPF(data []byte) (*opfPackage, error) {
	data = stripBOM(preprocessHTMLEntities(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("epubslice: parse OPF: %w", err)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// manifestByID indexes the manifest by item id.
func (p *opfPackage) manifestByID() map[string]*manifestItem {
	m := make(map[string]*manifestItem, len(p.Manifest.Items))
	for i := range p.Manifest.Items {
		m[p.Manifest.Items[i].ID] = &p.Manifest.Items[i]
	}
	return m
}

// spine resolves the itemrefs through the manifest. Itemrefs pointing at
// unknown ids are dropped.
func (p *opfPackage) spine() []spineItem {
	byID := p.manifestByID()
	items := make([]spineItem, 0, len(p.Spine.ItemRefs))
	for _, ref := range p.Spine.ItemRefs {
		mi, ok := byID[ref.IDRef]
		if !ok {
			continue
		}
		items = append(items, spineItem{
			ID:        mi.ID,
			Href:      mi.Href,
			MediaType: mi.MediaType,
			Linear:    ref.Linear != "no",
		})
	}
	return items
}

// navItem returns the ePub 3 navigation document, in manifest order.
func (p *opfPackage) navItem() *manifestItem {
	for i := range p.Manifest.Items {
		for _, prop := range strings.Fields(p.Manifest.Items[i].Properties) {
			if prop == "nav" {
				return &p.Manifest.Items[i]
			}
		}
	}
	return nil
}

// ncxItem returns the NCX document referenced from the spine, falling back
// to any manifest item with the NCX media type.
func (p *opfPackage) ncxItem() *manifestItem {
	if p.Spine.Toc != "" {
		if mi, ok := p.manifestByID()[p.Spine.Toc]; ok {
			return mi
		}
	}
	for i := range p.Manifest.Items {
		if p.Manifest.Items[i].MediaType == "application/x-dtbncx+xml" {
			return &p.Manifest.Items[i]
		}
	}
	return nil
}
