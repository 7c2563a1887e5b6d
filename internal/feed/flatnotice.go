package feed

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/model"
)

// NoticesFromFlatFeed converts parsed flat-feed records to canonical notices.
// Records with an unmapped type tag or without a solicitation number are
// skipped with a warning; one bad record never aborts the batch.
func NoticesFromFlatFeed(records map[string][]RawRecord, typeFilter []model.NoticeType) []model.Notice {
	allow := make(map[model.NoticeType]bool, len(typeFilter))
	for _, t := range typeFilter {
		allow[t] = true
	}

	var notices []model.Notice
	for _, tag := range FlatRecordTypes {
		noticeType, ok := MapFlatTag(tag)
		if !ok {
			continue
		}
		if len(allow) > 0 && !allow[noticeType] {
			continue
		}
		for _, rec := range records[tag] {
			n, err := flatRecordToNotice(noticeType, rec)
			if err != nil {
				zap.L().Warn("feed: skipping malformed flat record",
					zap.String("record_type", tag),
					zap.Error(err),
				)
				continue
			}
			notices = append(notices, n)
		}
	}
	return notices
}

func flatRecordToNotice(noticeType model.NoticeType, rec RawRecord) (model.Notice, error) {
	fields := rec.Fields

	n := model.Notice{
		NoticeType:         noticeType,
		SolNum:             fields["SOLNBR"],
		Agency:             ProperCase(fields["AGENCY"]),
		Office:             ProperCase(fields["OFFICE"]),
		ClassificationCode: fields["CLASSCOD"],
		NAICSCode:          fields["NAICS"],
		Subject:            fields["SUBJECT"],
		SetAside:           fields["SETASIDE"],
		Description:        fields["DESC"],
		URL:                fields["URL"],
	}
	if n.URL == "" {
		n.URL = fields["LINK"]
	}
	if n.SolNum == "" {
		return model.Notice{}, errMissingSolNum
	}

	n.PostedDate = parseFeedDate(fields["DATE"], fields["YEAR"])
	n.Emails = ExtractEmails(fields["EMAIL"], fields["ADDRESS"], fields["CONTACT"], fields["DESC"])

	return n, nil
}

var errMissingSolNum = eris.New("record has no solicitation number")

// parseFeedDate combines the feed's MMDD and two-digit-year fields. A zero
// time is returned when either field is unusable; reconciliation treats a
// zero posted date as "unknown".
func parseFeedDate(mmdd, yy string) time.Time {
	if len(mmdd) != 4 || len(yy) != 2 {
		return time.Time{}
	}
	month, err1 := strconv.Atoi(mmdd[:2])
	day, err2 := strconv.Atoi(mmdd[2:])
	year, err3 := strconv.Atoi(yy)
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}
	}
	return time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
