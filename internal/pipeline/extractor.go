package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pdf-faq-go/pkg/pdftext"
	"pdf-faq-go/pkg/tika"
)

// ErrUnsupportedFormat 表示没有可用的提取器。
var ErrUnsupportedFormat = errors.New("unsupported document format")

// TextExtractor 把上传文件转换为按页的文本。
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, data []byte) ([]PageText, error)
}

// DefaultExtractor 对 PDF 按页提取，纯文本直接读取，其他格式交给 Tika。
type DefaultExtractor struct {
	tikaClient *tika.Client
}

// NewExtractor 创建 DefaultExtractor，tikaClient 可以为 nil。
func NewExtractor(tikaClient *tika.Client) *DefaultExtractor {
	return &DefaultExtractor{tikaClient: tikaClient}
}

func (e *DefaultExtractor) Extract(ctx context.Context, fileName string, data []byte) ([]PageText, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		pages, err := pdftext.ExtractPages(data)
		if err != nil {
			return nil, err
		}
		out := make([]PageText, 0, len(pages))
		for _, p := range pages {
			out = append(out, PageText{Number: p.Number, Text: p.Text})
		}
		return out, nil
	case ".txt", ".md":
		// 纯文本没有页的概念，页码为 0 表示未知
		return []PageText{{Text: string(data)}}, nil
	default:
		if !e.tikaClient.Enabled() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
		}
		text, err := e.tikaClient.ExtractText(ctx, bytes.NewReader(data), fileName)
		if err != nil {
			return nil, err
		}
		return []PageText{{Text: text}}, nil
	}
}
