package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// MultipartForm — содержимое multipart-запроса загрузки.
type MultipartForm struct {
	// FileField — имя файлового поля формы (у replay-API — "file").
	FileField string
	// FileName — имя загружаемого файла.
	FileName string
	// Content — содержимое файла.
	Content []byte
	// Fields — дополнительные текстовые поля формы.
	Fields map[string]string
}

// PostMultipart выполняет POST с multipart-телом и колбэком прогресса.
//
// onProgress получает целые проценты 0–100 по мере отправки тела; 0
// гарантированно приходит до первого байта, 100 — после последнего.
// Тело собирается в память один раз, поэтому запрос безопасно повторить
// после refresh (прогресс при повторе начинается заново).
func (c *Client) PostMultipart(ctx context.Context, path string, form MultipartForm, onProgress func(int), out any) error {
	const op = "transport.client.PostMultipart"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range form.Fields {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("%s: write field %q: %w", op, name, err)
		}
	}

	fw, err := w.CreateFormFile(form.FileField, form.FileName)
	if err != nil {
		return fmt.Errorf("%s: create form file: %w", op, err)
	}

	if _, err := fw.Write(form.Content); err != nil {
		return fmt.Errorf("%s: write file content: %w", op, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: close multipart writer: %w", op, err)
	}

	if onProgress != nil {
		onProgress(0)
	}

	return c.do(ctx, call{
		method:      http.MethodPost,
		path:        path,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
		progress:    onProgress,
	}, out)
}

// progressReader оборачивает тело запроса и репортит процент отправленного.
type progressReader struct {
	r     *bytes.Reader
	total int64
	sent  int64
	last  int
	cb    func(int)
}

func newProgressReader(body []byte, cb func(int)) io.Reader {
	return &progressReader{
		r:     bytes.NewReader(body),
		total: int64(len(body)),
		last:  -1,
		cb:    cb,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)

	if n > 0 && p.total > 0 {
		p.sent += int64(n)

		pct := int(p.sent * 100 / p.total)
		if pct > 100 {
			pct = 100
		}

		if pct != p.last {
			p.last = pct
			p.cb(pct)
		}
	}

	return n, err
}
