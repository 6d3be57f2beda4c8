// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/lzw"
	"io"
)

// decodeResponseBody implements spec.md section 6's "Body decoding of
// stored responses": a Content-Encoding response header triggers
// decompression on GetResponse for the four named encodings; unknown
// encodings pass through unchanged. No ecosystem library supersedes
// these RFC/IANA-standard codecs (see DESIGN.md), so this is the one
// area of the module built directly on the standard library.
func decodeResponseBody(r *Response) {
	enc := headerValue(r.Headers, "content-encoding")
	if enc == "" {
		return
	}
	body, err := decodeBody(enc, r.Body)
	if err != nil {
		// Leave the body as received; the application can still
		// inspect the raw bytes and the Content-Encoding header.
		return
	}
	r.Body = body
}

func headerValue(fields []HeaderField, name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return io.ReadAll(fr)
	case "compress":
		// The historical Unix "compress" LZW encoding, MSB-first order,
		// as RFC 7230 section 4.2.1 mentions for legacy compatibility.
		lr := lzw.NewReader(bytes.NewReader(body), lzw.MSB, 8)
		defer lr.Close()
		return io.ReadAll(lr)
	case "zip":
		// A Content-Encoding of "zip" is not itself a streaming
		// compression scheme; treat the body as a single-entry zip
		// archive, per spec.md section 6.
		zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return nil, err
		}
		if len(zr.File) == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		f, err := zr.File[0].Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	default:
		return body, nil
	}
}
