package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/fetcher"
	"github.com/sells-group/solwatch/internal/model"
)

// FlatFeedURL builds the FTP URL of the nightly flat file for a given day.
// pathTmpl carries one %s slot for the YYYYMMDD date.
func FlatFeedURL(host, pathTmpl string, day time.Time) string {
	return "ftp://" + host + fmt.Sprintf(pathTmpl, day.Format("20060102"))
}

// FetchFlatFeed downloads and parses one day's flat file into canonical
// notices.
func FetchFlatFeed(ctx context.Context, f fetcher.Fetcher, host, pathTmpl string, day time.Time, typeFilter []model.NoticeType) ([]model.Notice, error) {
	url := FlatFeedURL(host, pathTmpl, day)
	log := zap.L().With(zap.String("component", "feed"))

	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: download flat file %s", url)
	}
	defer body.Close()

	records, err := ParseFlatFeed(body)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse flat file %s", url)
	}

	notices := NoticesFromFlatFeed(records, typeFilter)
	log.Info("flat feed parsed",
		zap.String("url", url), zap.Int("notices", len(notices)))
	return notices, nil
}
