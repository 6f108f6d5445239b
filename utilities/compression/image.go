package compression

import (
	"bytes"
	"compress/gzip"
	"io"
)

// CompressImage compresses a disk image using RLE8 and gzip. It returns the
// number of RLE8 bytes fed to gzip.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	// Images are small, so the slowest level costs nothing noticeable.
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	n, err := CompressRLE8(input, gzWriter)
	if err != nil {
		gzWriter.Close()
		return n, err
	}
	return n, gzWriter.Close()
}

// DecompressImage takes a gzipped, RLE8-encoded disk image and writes the raw
// bytes to `output`. It returns the decompressed size.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, err
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressImageToBytes is [DecompressImage] into a new byte slice.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := DecompressImage(input, &buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
