package recaptchabuster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/klauspost/compress/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	crxMagic = []byte("Cr24")
	zipMagic = []byte("PK\x03\x04")

	errNotExtensionPackage = errors.New("not a CRX or zip package")
)

// crxPayload strips the CRX2/CRX3 header and returns the embedded zip archive.
// Plain zip archives are returned unchanged.
func crxPayload(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return data, nil
	}
	if len(data) < 12 || !bytes.HasPrefix(data, crxMagic) {
		return nil, errNotExtensionPackage
	}

	var offset uint64
	switch version := binary.LittleEndian.Uint32(data[4:8]); version {
	case 2:
		if len(data) < 16 {
			return nil, fmt.Errorf("truncated CRX2 header")
		}
		publicKeyLen := uint64(binary.LittleEndian.Uint32(data[8:12]))
		signatureLen := uint64(binary.LittleEndian.Uint32(data[12:16]))
		offset = 16 + publicKeyLen + signatureLen
	case 3:
		headerLen := uint64(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12 + headerLen
	default:
		return nil, fmt.Errorf("unsupported CRX version %d", version)
	}

	if offset > uint64(len(data)) {
		return nil, fmt.Errorf("CRX header runs past end of file")
	}
	payload := data[offset:]
	if !bytes.HasPrefix(payload, zipMagic) {
		return nil, errNotExtensionPackage
	}
	return payload, nil
}

// unpackExtension extracts the extension package at path into dir
func unpackExtension(path, dir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	payload, err := crxPayload(data)
	if err != nil {
		return err
	}
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, file := range archive.File {
		dest := filepath.Join(dir, file.Name)
		if !strings.HasPrefix(dest, root) {
			return fmt.Errorf("archive entry %q escapes extension directory", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(file, dest); err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractFile(file *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
