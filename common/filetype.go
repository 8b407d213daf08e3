// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"reflect"
	"strings"

	"github.com/JeffreyRichter/enum/enum"
)

var EFileType = FileType(0)

// FileType classifies a remote path. Unknown means no metadata has been
// fetched yet; Absent means the facade reported the path does not exist.
type FileType uint8

func (FileType) Unknown() FileType   { return FileType(0) }
func (FileType) Absent() FileType    { return FileType(1) }
func (FileType) Regular() FileType   { return FileType(2) }
func (FileType) Directory() FileType { return FileType(3) }
func (FileType) Symlink() FileType   { return FileType(4) }
func (FileType) Block() FileType     { return FileType(5) }
func (FileType) Char() FileType      { return FileType(6) }
func (FileType) Socket() FileType    { return FileType(7) }
func (FileType) Fifo() FileType      { return FileType(8) }

func (ft FileType) String() string {
	return strings.ToLower(enum.StringInt(ft, reflect.TypeOf(ft)))
}

// FileTypeFromCode maps the single-character type codes used by the facade's
// ls output (the first column of `ls -l`) onto a FileType.
func FileTypeFromCode(code string) FileType {
	switch code {
	case "-":
		return EFileType.Regular()
	case "d":
		return EFileType.Directory()
	case "l":
		return EFileType.Symlink()
	case "b":
		return EFileType.Block()
	case "c":
		return EFileType.Char()
	case "s":
		return EFileType.Socket()
	case "p":
		return EFileType.Fifo()
	default:
		return EFileType.Unknown()
	}
}
