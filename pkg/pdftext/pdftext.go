// Package pdftext 按页提取 PDF 中的纯文本。
package pdftext

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyFile 表示输入内容为空。
var ErrEmptyFile = errors.New("pdf content is empty")

// Page 是一页的文本，Number 从 1 开始。
type Page struct {
	Number int
	Text   string
}

// ExtractPages 返回每一页的纯文本，跳过没有内容对象的页。
// 损坏的文件可能让解析库 panic，这里统一转换为错误。
func ExtractPages(data []byte) (pages []Page, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 失败: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("提取第 %d 页文本失败: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
