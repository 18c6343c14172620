package businessflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/amirphl/orochi-attribution/utils"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/sirupsen/logrus"
)

const maxUIDAttempts = 3

// marketplaceItemPattern matches listing ids such as MLM123456 or MLA-987654 inside product URLs
var marketplaceItemPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(ml[a-z])-?(\d+)`)

// LinkIssueFlow mints tracked links for outbound product recommendations
type LinkIssueFlow interface {
	IssueLink(ctx context.Context, req *dto.GenerateClickLogRequest) (*dto.GenerateClickLogResponse, error)
}

type LinkIssueFlowImpl struct {
	repo   repository.ClickLogRepository
	cfg    config.TrackingConfig
	newUID func() string
	now    func() time.Time
	log    *logrus.Entry
}

func NewLinkIssueFlow(repo repository.ClickLogRepository, cfg config.TrackingConfig, newUID func() string, log *logrus.Entry) LinkIssueFlow {
	return &LinkIssueFlowImpl{
		repo:   repo,
		cfg:    cfg,
		newUID: newUID,
		now:    utils.UTCNow,
		log:    log,
	}
}

// NewUIDGenerator returns the nanoid generator shared by flows that mint ledger rows
func NewUIDGenerator(length int) (func() string, error) {
	if length <= 0 {
		length = 12
	}
	gen, err := nanoid.Standard(length)
	if err != nil {
		return nil, fmt.Errorf("failed to create uid generator: %w", err)
	}
	return gen, nil
}

func (f *LinkIssueFlowImpl) IssueLink(ctx context.Context, req *dto.GenerateClickLogRequest) (*dto.GenerateClickLogResponse, error) {
	if err := f.validateIssueRequest(req); err != nil {
		return nil, err
	}

	itemID := req.ItemID
	if itemID == nil || strings.TrimSpace(*itemID) == "" {
		itemID = ExtractMarketplaceItemID(req.OriginalURL)
	} else {
		itemID = utils.ToPtr(normalizeItemID(*itemID))
	}

	var row *models.ClickLog
	for attempt := 0; attempt < maxUIDAttempts; attempt++ {
		uid := f.newUID()
		row = &models.ClickLog{
			UID:           uid,
			CustomerRef:   strings.TrimSpace(req.CustomerRef),
			ProductName:   strings.TrimSpace(req.ProductRef),
			ProductItemID: itemID,
			OriginalURL:   req.OriginalURL,
			TrackedURL:    f.trackedURL(uid),
			CampaignRef:   req.CampaignRef,
			CreatedAt:     f.now().UTC(),
		}
		err := f.repo.Save(ctx, row)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateKey) && attempt < maxUIDAttempts-1 {
			f.log.WithField("uid", uid).Warn("tracked link uid collision, regenerating")
			continue
		}
		return nil, NewBusinessError("CLICK_LOG_CREATE_FAILED", "Failed to create click log", err)
	}

	f.log.WithFields(logrus.Fields{
		"request_id":   requestIDFrom(ctx),
		"click_log_id": row.ID,
		"customer_ref": row.CustomerRef,
		"item_id":      utils.Deref(row.ProductItemID),
	}).Info("tracked link issued")

	return &dto.GenerateClickLogResponse{ClickLog: ToClickLogDTO(*row)}, nil
}

func (f *LinkIssueFlowImpl) validateIssueRequest(req *dto.GenerateClickLogRequest) error {
	if req == nil || strings.TrimSpace(req.CustomerRef) == "" {
		return newValidationError(ErrCustomerRefRequired)
	}
	if strings.TrimSpace(req.ProductRef) == "" {
		return newValidationError(ErrProductNameRequired)
	}
	u, err := url.Parse(req.OriginalURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return newValidationError(ErrInvalidOriginalURL)
	}
	return nil
}

func (f *LinkIssueFlowImpl) trackedURL(uid string) string {
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/r/" + uid
}

// ExtractMarketplaceItemID pulls the first listing id out of a product URL, e.g. MLM-123 becomes MLM123
func ExtractMarketplaceItemID(raw string) *string {
	m := marketplaceItemPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	id := strings.ToUpper(m[1]) + m[2]
	return &id
}

func normalizeItemID(id string) string {
	id = strings.TrimSpace(id)
	if m := marketplaceItemPattern.FindStringSubmatch(id); m != nil {
		return strings.ToUpper(m[1]) + m[2]
	}
	return id
}

// ParseTrackedUID accepts either a bare uid or a full tracked URL and returns the uid
func ParseTrackedUID(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "/r/"); i >= 0 {
		ref = ref[i+len("/r/"):]
	}
	if i := strings.IndexAny(ref, "?#/"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}
