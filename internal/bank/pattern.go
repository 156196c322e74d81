package bank

import (
	"regexp"
	"strings"
	"time"
)

// File name patterns use brace placeholders, e.g. "PAY_{YYYYMMDD}_{BATCH}.txt"
// for outbound payment files and "REC_{YYYYMMDD}.txt" for inbound
// reconciliation files.

// RenderFileName expands a pattern for a concrete date and batch number.
func RenderFileName(pattern string, date time.Time, batchNumber string) string {
	name := pattern
	name = strings.ReplaceAll(name, "{YYYYMMDD}", date.Format("20060102"))
	name = strings.ReplaceAll(name, "{YYMMDD}", date.Format("060102"))
	name = strings.ReplaceAll(name, "{BATCH}", batchNumber)
	return name
}

var placeholderRe = regexp.MustCompile(`\\\{[A-Z]+\\\}`)

// CompilePattern converts a file name pattern into a matcher for remote
// directory listings. Date placeholders match any digits of the right
// width, {BATCH} matches any run of non-separator characters.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = placeholderRe.ReplaceAllStringFunc(quoted, func(ph string) string {
		switch ph {
		case `\{YYYYMMDD\}`:
			return `\d{8}`
		case `\{YYMMDD\}`:
			return `\d{6}`
		case `\{BATCH\}`:
			return `[A-Za-z0-9\-]+`
		default:
			return `.+`
		}
	})
	return regexp.Compile("^" + quoted + "$")
}
