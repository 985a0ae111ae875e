// Package notion pushes approved tenders into a Notion database for the
// sales team. The API allows roughly three requests per second; a shared
// limiter keeps exports under that.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fernandes-group/tenderscan/internal/config"
	"github.com/fernandes-group/tenderscan/internal/model"
)

const requestsPerSecond = 3

// Client wraps the Notion API for tender exports.
type Client struct {
	api       *notionapi.Client
	tendersDB notionapi.DatabaseID
	limiter   *rate.Limiter
}

// NewClient builds an export client. Returns an error when the integration is
// not configured.
func NewClient(cfg config.NotionConfig) (*Client, error) {
	if cfg.Token == "" || cfg.TendersDB == "" {
		return nil, eris.New("notion: token and tenders_db must be configured")
	}
	return &Client{
		api:       notionapi.NewClient(notionapi.Token(cfg.Token)),
		tendersDB: notionapi.DatabaseID(cfg.TendersDB),
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

// ExportApproved creates one page per tender. A failed page is logged and
// skipped; the export pushes through the rest and reports how many landed.
func (c *Client) ExportApproved(ctx context.Context, tenders []model.Tender) (int, error) {
	exported := 0
	for i := range tenders {
		if err := c.limiter.Wait(ctx); err != nil {
			return exported, eris.Wrap(err, "notion: rate limiter wait")
		}
		if err := c.createTenderPage(ctx, &tenders[i]); err != nil {
			zap.L().Warn("notion export failed for tender",
				zap.String("control_number", tenders[i].ControlNumber), zap.Error(err))
			continue
		}
		exported++
	}
	zap.L().Info("notion export finished",
		zap.Int("exported", exported), zap.Int("total", len(tenders)))
	return exported, nil
}

func (c *Client) createTenderPage(ctx context.Context, t *model.Tender) error {
	title := t.Title
	if title == "" {
		title = t.ControlNumber
	}

	properties := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: truncate(title, 100)}}},
		},
		"Organization": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: truncate(t.OrgName, 2000)}}},
		},
		"CNPJ": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: t.OrgID}}},
		},
		"State": notionapi.SelectProperty{
			Select: notionapi.Option{Name: orDefault(t.State, "N/A")},
		},
		"Value": notionapi.NumberProperty{
			Number: t.Value(),
		},
		"Confidence": notionapi.NumberProperty{
			Number: t.Annotation.Confidence,
		},
		"Approval Reason": notionapi.SelectProperty{
			Select: notionapi.Option{Name: orDefault(t.Annotation.ApprovalReason, "unknown")},
		},
	}
	if cls := t.Annotation.Classification; cls != nil {
		properties["Government Level"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(cls.GovernmentLevel)},
		}
		properties["Org Type"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(cls.OrgType)},
		}
	}

	_, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.tendersDB,
		},
		Properties: properties,
	})
	if err != nil {
		return eris.Wrapf(err, "notion: create page %s", t.ControlNumber)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
