// ABOUTME: BQRS decoding through the one-shot codeql bqrs decode command
// ABOUTME: Not a protocol request; runs beside the query server

package queryserver

import (
	"context"
	"fmt"
	"os"

	"github.com/harper/codeql-relay/internal/errors"
)

// Formats accepted by "codeql bqrs decode".
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
	FormatBQRS = "bqrs"

	DefaultBQRSFormat = FormatJSON
)

var bqrsFormats = map[string]bool{
	FormatJSON: true,
	FormatCSV:  true,
	FormatText: true,
	FormatBQRS: true,
}

// DecodeBQRS returns the decoded contents of a result set file verbatim.
func (c *Client) DecodeBQRS(ctx context.Context, path, format string) (string, error) {
	if format == "" {
		format = DefaultBQRSFormat
	}
	if !bqrsFormats[format] {
		return "", errors.NewValidationError(path, fmt.Sprintf("Unsupported BQRS format: %s (use json, csv, text or bqrs)", format))
	}

	abs := absPath(path)
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.NewFileNotFoundError(abs)
		}
		return "", errors.Wrapf(err, "stat %s", abs)
	}

	res, err := c.runner.Run(ctx, "bqrs", "decode", "--format="+format, "--", abs)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", errors.NewDecodeError(abs, format, res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}
