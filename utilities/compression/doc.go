// Package compression packs disk images for storage and transport.
//
// A floppy image is mostly runs of identical bytes: unformatted sectors, the
// tail of the allocation table, empty directory slots. Images are first
// run-length encoded with RLE8 and the result is gzipped; a blank 1.44M FAT12
// image shrinks to well under a kilobyte.
//
// RLE8 as used here: a byte that occurs N >= 2 times in a row is written twice,
// followed by one byte holding N-2. Runs longer than 257 bytes are split. A
// byte that occurs exactly twice therefore costs three bytes:
//
//	W XXXXXXXXXXXXXXX Y ZZ
//	W XX 13           Y ZZ 0
package compression
