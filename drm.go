package epubslice

import (
	"encoding/xml"
	"errors"
)

const (
	encryptionFilePath = "META-INF/encryption.xml"

	// sinfFilePath only exists in Apple FairPlay protected books.
	sinfFilePath = "META-INF/sinf.xml"
)

// Font obfuscation is not DRM; books using only these algorithms are readable.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

type xmlEncryption struct {
	XMLName       xml.Name `xml:"encryption"`
	EncryptedData []struct {
		EncryptionMethod struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
	} `xml:"EncryptedData"`
}

// checkDRM inspects META-INF/encryption.xml and the FairPlay marker.
// It returns ErrDRMProtected when any entry is encrypted with something
// other than font obfuscation, and reports whether font obfuscation was seen.
// An unreadable encryption.xml is treated as DRM.
func checkDRM(idx *zipIndex) (fontObfuscation bool, err error) {
	if idx.lookup(sinfFilePath) != nil {
		return false, ErrDRMProtected
	}

	data, err := idx.read(encryptionFilePath)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var enc xmlEncryption
	if err := xml.Unmarshal(stripBOM(data), &enc); err != nil {
		return false, ErrDRMProtected
	}
	for _, ed := range enc.EncryptedData {
		if !fontObfuscationAlgorithms[ed.EncryptionMethod.Algorithm] {
			return false, ErrDRMProtected
		}
		fontObfuscation = true
	}
	return fontObfuscation, nil
}
