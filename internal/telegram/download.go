package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/retry"
)

// errTooLarge marks a download that exceeded the configured byte limit.
var errTooLarge = errors.New("file exceeds download limit")

// download fetches a chat file into memory, reading at most limit bytes.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, b.opts.Retry, func(ctx context.Context) error {
		link, err := b.api.GetFileDirectURL(fileID)
		if err != nil {
			return apiError("getFile", err)
		}
		data, err = b.fetch(ctx, link)
		return err
	}, func(int, time.Duration, error) {
		b.opts.Recorder.IncTransportRetry("download")
	})
	return data, err
}

func (b *Bot) fetch(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, tberrors.InternalError("bad file URL", err)
	}
	resp, err := b.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, tberrors.TransportError("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		terr := tberrors.TransportError("download", fmt.Errorf("unexpected status %s", resp.Status))
		if resp.StatusCode < 500 {
			terr.Retryable = false
		}
		return nil, terr
	}

	limit := b.opts.MaxDownloadBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, tberrors.TransportError("download", err)
	}
	if int64(len(data)) > limit {
		terr := tberrors.TransportError("download", errTooLarge)
		terr.Retryable = false
		return nil, terr
	}
	return data, nil
}
