package api

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// sharePageTemplate is the document a recipient sees when opening a share
// link. html/template escapes the file name and message; both are
// untrusted.
var sharePageTemplate = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{.FileName}}</title>
<style>
  body { margin: 0; background: #f6f7f9; font-family: 'Inter', system-ui, sans-serif; color: #333; }
  .share { max-width: 500px; margin: 50px auto; padding: 30px; border: 1px solid #e0e0e0; border-radius: 8px;
    box-shadow: 0 4px 12px rgba(0,0,0,0.05); background: #fff; text-align: center; }
  .share h1 { font-size: 24px; color: #2c3e50; margin-bottom: 20px; overflow-wrap: anywhere; }
  .share .message { margin-top: 10px; font-size: 16px; line-height: 1.5; color: #555; white-space: pre-wrap; }
  .share .download { display: inline-block; margin-top: 30px; padding: 12px 25px; font-size: 18px; font-weight: bold;
    color: #fff; background: #007bff; border-radius: 5px; text-decoration: none; }
  .share .download:hover { background: #0056b3; }
</style>
</head>
<body>
<main class="share">
  <h1>{{.FileName}}</h1>
  <p>This file has been shared with you and is ready to download.</p>
  {{- if .Message}}
  <p class="message">{{.Message}}</p>
  {{- end}}
  <a class="download" href="{{.DownloadURL}}" download>Download "{{.FileName}}"</a>
</main>
</body>
</html>
`))

type sharePageData struct {
	FileName    string
	Message     string
	DownloadURL string
}

// renderSharePage renders page into a buffer first so a template failure
// still produces a clean error response.
func renderSharePage(w http.ResponseWriter, page *simpleshare.SharePage) error {
	var buf bytes.Buffer
	err := sharePageTemplate.Execute(&buf, sharePageData{
		FileName:    page.Object.FileName,
		Message:     page.Object.Message,
		DownloadURL: page.DownloadURL,
	})
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, err = buf.WriteTo(w)
	return err
}
