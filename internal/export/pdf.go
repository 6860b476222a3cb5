// Package export renders dossiers to PDF through headless Chromium.
package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Yuzori/l-Agence/internal/agency"
)

type ChromiumExporter struct {
	chromePath string
}

func NewChromiumExporter() *ChromiumExporter {
	return &ChromiumExporter{chromePath: detectChromePath()}
}

func (e *ChromiumExporter) RenderDossierPDF(ctx context.Context, d agency.Dossier) ([]byte, error) {
	htmlDoc := buildDossierHTML(d)

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if e.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(e.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

const dossierCSS = `body{font-family:Georgia,serif;color:#1c1917;margin:0;padding:0.6rem;}
.wrap{max-width:860px;margin:0 auto;}
h1{font-size:1.5rem;margin-bottom:0.2rem;}
.meta{color:#57534e;font-size:0.85rem;margin-bottom:0.9rem;}
.meta strong{color:#1c1917;}
.tally{font-size:0.8rem;color:#44403c;margin:0.6rem 0;}
.description{line-height:1.5;}
.description table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.85rem;}
.description th,.description td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
.comments{margin-top:1.2rem;border-top:2px solid #d6d3d1;padding-top:0.6rem;}
.comment{margin:0.5rem 0;padding-left:0.5rem;border-left:3px solid #d6d3d1;}
.comment .author{font-weight:700;}
.comment .when{color:#78716c;font-size:0.75rem;margin-left:0.4rem;}
.reply{margin:0.3rem 0 0.3rem 1.2rem;padding-left:0.5rem;border-left:2px solid #e7e5e4;}
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
@media print{@page{size:auto;margin:12mm;}}`

func buildDossierHTML(d agency.Dossier) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset='utf-8'><title>")
	b.WriteString(html.EscapeString(d.Title))
	b.WriteString("</title><style>")
	b.WriteString(dossierCSS)
	b.WriteString("</style></head><body><div class='wrap'>")

	b.WriteString("<h1>" + html.EscapeString(d.Title) + "</h1>")
	b.WriteString("<div class='meta'><strong>" + html.EscapeString(d.Author) + "</strong>")
	b.WriteString(" &middot; " + html.EscapeString(d.Timestamp.In(time.UTC).Format("January 2, 2006 at 15:04 MST")))
	b.WriteString("</div>")

	if d.DescriptionHTML != "" {
		// DescriptionHTML comes from the store's goldmark render of the
		// markdown description.
		b.WriteString("<div class='description'>" + d.DescriptionHTML + "</div>")
	} else if d.Description != "" {
		b.WriteString("<div class='description'><p>" + html.EscapeString(d.Description) + "</p></div>")
	}

	b.WriteString("<div class='tally'>")
	b.WriteString(strconv.Itoa(len(d.Likes)) + " likes &middot; ")
	b.WriteString(strconv.Itoa(len(d.Dislikes)) + " dislikes &middot; ")
	b.WriteString(strconv.Itoa(len(d.Reposts)) + " reposts")
	b.WriteString("</div>")

	if len(d.Comments) > 0 {
		b.WriteString("<div class='comments'><h2>Comments</h2>")
		for _, c := range d.Comments {
			writeComment(&b, c)
		}
		b.WriteString("</div>")
	}

	b.WriteString("</div></body></html>")
	return b.String()
}

func writeComment(b *strings.Builder, c agency.Comment) {
	b.WriteString("<div class='comment'><span class='author'>" + html.EscapeString(c.Author) + "</span>")
	b.WriteString("<span class='when'>" + html.EscapeString(c.Timestamp.In(time.UTC).Format("2006-01-02 15:04")) + "</span>")
	b.WriteString("<div>" + html.EscapeString(c.Text) + "</div>")
	for _, r := range c.Replies {
		b.WriteString("<div class='reply'><span class='author'>" + html.EscapeString(r.Author) + "</span>")
		b.WriteString("<span class='when'>" + html.EscapeString(r.Timestamp.In(time.UTC).Format("2006-01-02 15:04")) + "</span>")
		b.WriteString("<div>" + html.EscapeString(r.Text) + "</div></div>")
	}
	b.WriteString("</div>")
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
