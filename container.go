package epubslice

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// opfMediaType is the rootfile media type that identifies the package document.
const opfMediaType = "application/oebps-package+xml"

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// locatePackage returns the archive path of the OPF package document.
//
// META-INF/container.xml is consulted first. A rootfile with the OPF media
// type wins over other rootfiles. Without container.xml the first ".opf"
// entry in the archive is used.
func locatePackage(idx *zipIndex) (string, error) {
	data, err := idx.read(containerPath)
	if errors.Is(err, ErrFileNotFound) {
		for _, zf := range idx.files {
			if strings.HasSuffix(strings.ToLower(zf.Name), ".opf") {
				return zf.Name, nil
			}
		}
		return "", fmt.Errorf("epubslice: no OPF file found in archive: %w", ErrInvalidEPub)
	}
	if err != nil {
		return "", fmt.Errorf("epubslice: read container.xml: %w", err)
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("epubslice: parse container.xml: %w", err)
	}

	var first string
	for _, rf := range c.RootFiles {
		p := strings.TrimSpace(rf.FullPath)
		if p == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
			return p, nil
		}
		if first == "" {
			first = p
		}
	}
	if first == "" {
		return "", fmt.Errorf("epubslice: container.xml names no rootfile: %w", ErrInvalidEPub)
	}
	return first, nil
}
