package score

import "github.com/sells-group/solwatch/internal/model"

// Verdict is the notice-level aggregate over scored attachments.
type Verdict struct {
	ReviewRec model.ReviewRec
	// Compliant is 1 when at least one attachment predicts compliant, 0 when
	// every prediction flags, nil when nothing could be evaluated.
	Compliant *int
	// NAFlag is true when the solicitation has no attachments at all.
	NAFlag bool
}

// Compose derives the aggregate verdict from a notice's attachments.
//
// No attachments at all means the solicitation cannot be evaluated and is
// marked not applicable. Attachments that exist but yielded no prediction
// (unreadable, or the classifier was down) produce Cannot Evaluate. Otherwise
// a single compliant prediction among the attachments is enough to call the
// notice compliant.
func Compose(attachments []model.Attachment) Verdict {
	if len(attachments) == 0 {
		return Verdict{ReviewRec: model.RecNotApplicable, NAFlag: true}
	}

	scored := 0
	sum := 0
	for _, att := range attachments {
		if att.Prediction != nil {
			scored++
			sum += *att.Prediction
		}
	}
	if scored == 0 {
		return Verdict{ReviewRec: model.RecCannotEvaluate}
	}

	compliant := 0
	if sum > 0 {
		compliant = 1
	}
	rec := model.RecNonCompliant
	if compliant == 1 {
		rec = model.RecCompliant
	}
	return Verdict{ReviewRec: rec, Compliant: &compliant}
}
