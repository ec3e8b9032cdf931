package qpack

import "golang.org/x/net/http2/hpack"

// QPACK reuses HPACK's Huffman code (RFC 9204 §4.1.2 defers to RFC 7541
// Appendix B verbatim), so the canonical table already vendored for HTTP/2
// header compression is directly reusable here.

func huffmanAppend(dst []byte, s string) []byte {
	return hpack.AppendHuffmanString(dst, s)
}

func huffmanEncodedLen(s string) int {
	return int(hpack.HuffmanEncodeLength(s))
}

func huffmanDecode(v []byte) (string, error) {
	return hpack.HuffmanDecodeToString(v)
}
