/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"
)

var ErrUnknownSession = errors.New("unknown game session")

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// errorf is never silenced by --verbose.
func errorf(format string, args ...any) {
	log.Printf("%s | ERROR: "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// drainErrors logs handler write failures until errs is closed.
func drainErrors(errs <-chan error) {
	for err := range errs {
		if errors.Is(err, http.ErrHandlerTimeout) {
			continue
		}
		errorf("%v", err)
	}
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func newPage(prefix, title, body, href string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(prefix))
	htmlBody.WriteString(`<link rel="stylesheet" href="` + html.EscapeString(prefix) + `/assets/colorguess/app.css">`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><a class=\"page-link\" href=\"%s\">%s</a></body></html>", html.EscapeString(href), body))

	return htmlBody.String()
}

func formatBytes(n int64) string {
	const unit int64 = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := unit, 0
	for rest := n / unit; rest >= unit; rest /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}
