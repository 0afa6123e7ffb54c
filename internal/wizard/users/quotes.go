package users

import (
	"context"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/db/postgresql"
)

// AddQuote submits a quote for the splash screen rotation.
func AddQuote(ctx context.Context, repo *postgresql.RepositoryStore, author *models.User, content string) (*models.Quote, apperrors.Error) {
	if content == "" {
		return nil, ErrBadInput.Msg("quote is empty")
	}
	if len(content) > 100 {
		return nil, ErrBadInput.Msg("quote exceeds 100 characters")
	}
	q := models.Quote{
		CreationUser: author.UserName,
		Content:      content,
	}
	if _, err := repo.CreateQuote(ctx, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// VoteQuote records one 0..5 score. Authors cannot score their own
// quotes and nobody votes twice; the voters list is the ballot box.
func VoteQuote(ctx context.Context, repo *postgresql.RepositoryStore, voter *models.User, quoteID int64, score int) apperrors.Error {
	if score < 0 || score > 5 {
		return ErrBadInput.Msg("score must be between 0 and 5")
	}
	q, err := repo.GetQuote(ctx, quoteID)
	if err != nil {
		return err
	}
	if q.CreationUser == voter.UserName {
		return ErrForbidden.Msg("cannot vote for your own quote")
	}
	for _, v := range gjson.Parse(q.Voters).Array() {
		if v.String() == voter.UserName {
			return ErrForbidden.Msg("already voted for this quote")
		}
	}
	scores, serr := sjson.Set(q.Scores, "-1", score)
	if serr != nil {
		return ErrUsers.Msg("failed to append score").Err(serr)
	}
	voters, serr := sjson.Set(q.Voters, "-1", voter.UserName)
	if serr != nil {
		return ErrUsers.Msg("failed to append voter").Err(serr)
	}
	return repo.UpdateQuote(ctx, quoteID, scores, voters)
}

// QuoteAverage computes the mean score of a quote, 0 when unrated.
func QuoteAverage(q *models.Quote) float64 {
	scores := gjson.Parse(q.Scores).Array()
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Float()
	}
	return sum / float64(len(scores))
}
