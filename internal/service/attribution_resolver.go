package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"gorm.io/gorm"
)

const (
	visitURLMaxRune = 1000
	visitUTMMaxRune = 100
	visitIPMaxRune  = 64
)

// 归因来源
const (
	AttributionSourceCookie   = "cookie"
	AttributionSourceCustomer = "customer"
)

// AttributionCookie 推广 Cookie 内容
type AttributionCookie struct {
	AffiliateParam string
	VisitID        uint
}

// ParseAttributionCookie 解析 affiliateParam|visitId 格式的 Cookie
func ParseAttributionCookie(raw string) (AttributionCookie, error) {
	parts := strings.Split(strings.TrimSpace(raw), constants.AttributionCookieSeparator)
	if len(parts) != 2 {
		return AttributionCookie{}, ErrAttributionCookieInvalid
	}
	param := strings.TrimSpace(parts[0])
	visitID, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if param == "" || err != nil || visitID == 0 {
		return AttributionCookie{}, ErrAttributionCookieInvalid
	}
	return AttributionCookie{AffiliateParam: param, VisitID: uint(visitID)}, nil
}

// FormatAttributionCookie 生成 Cookie 值
func FormatAttributionCookie(param string, visitID uint) string {
	return strings.TrimSpace(param) + constants.AttributionCookieSeparator + strconv.FormatUint(uint64(visitID), 10)
}

// CookieMaxAgeSeconds Cookie 有效期（秒）
func CookieMaxAgeSeconds(days int) int {
	if days <= 0 {
		return 0
	}
	return days * 86400
}

// VisitorContext 转化时的访客上下文
type VisitorContext struct {
	Cookie         string
	CustomerEmail  string
	CustomerUserID uint
}

// Attribution 归因结果
type Attribution struct {
	Affiliate *models.Affiliate
	Visit     *models.Visit
	Source    string
}

// TrackVisitInput 访问追踪输入
type TrackVisitInput struct {
	AffiliateParam string
	Cookie         string
	UserID         uint
	URL            string
	Referrer       string
	UTMSource      string
	UTMMedium      string
	UTMCampaign    string
	IP             string
}

// TrackVisitResult 访问追踪结果，CookieValue 为空表示不写 Cookie
type TrackVisitResult struct {
	Outcome     string `json:"outcome"`
	AffiliateID uint   `json:"affiliate_id,omitempty"`
	VisitID     uint   `json:"visit_id,omitempty"`
	CookieValue string `json:"-"`
	MaxAge      int    `json:"-"`
}

// AttributionResolver 推广归因
type AttributionResolver struct {
	affiliateRepo repository.AffiliateRepository
	visitRepo     repository.VisitRepository
	customerRepo  repository.CustomerRepository
	ledger        *AffiliateLedger
	settings      ReferralSettingReader
}

// NewAttributionResolver 创建归因服务
func NewAttributionResolver(
	affiliateRepo repository.AffiliateRepository,
	visitRepo repository.VisitRepository,
	customerRepo repository.CustomerRepository,
	ledger *AffiliateLedger,
	settings ReferralSettingReader,
) *AttributionResolver {
	return &AttributionResolver{
		affiliateRepo: affiliateRepo,
		visitRepo:     visitRepo,
		customerRepo:  customerRepo,
		ledger:        ledger,
		settings:      settings,
	}
}

// Resolve 解析转化归属的推广员，无归因或自推广时返回 nil
func (r *AttributionResolver) Resolve(visitor VisitorContext) (*Attribution, error) {
	setting, err := r.settings.GetReferralSetting()
	if err != nil {
		return nil, err
	}
	attribution, _, err := r.resolveWithSetting(visitor, setting)
	return attribution, err
}

// resolveWithSetting 返回归因结果与未归因原因
func (r *AttributionResolver) resolveWithSetting(visitor VisitorContext, setting ReferralSetting) (*Attribution, string, error) {
	attribution, err := r.resolveCookie(visitor.Cookie, setting)
	if err != nil {
		return nil, "", err
	}
	if attribution == nil && setting.CreditCustomerReferrer {
		attribution, err = r.resolveCustomer(visitor, setting)
		if err != nil {
			return nil, "", err
		}
	}
	if attribution == nil {
		return nil, constants.ReferralOutcomeNoAttribution, nil
	}
	if setting.SelfReferralDisabled && IsSelfReferral(attribution.Affiliate, visitor.CustomerEmail, visitor.CustomerUserID) {
		return nil, constants.ReferralOutcomeSelfReferral, nil
	}
	return attribution, "", nil
}

func (r *AttributionResolver) resolveCookie(raw string, setting ReferralSetting) (*Attribution, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	cookie, err := ParseAttributionCookie(raw)
	if err != nil {
		return nil, nil
	}
	affiliate, err := r.lookupAffiliate(cookie.AffiliateParam, setting.ReferralFormat)
	if err != nil || affiliate == nil {
		return nil, err
	}
	visit, err := r.visitRepo.GetByID(cookie.VisitID)
	if err != nil {
		return nil, err
	}
	if visit == nil || visit.AffiliateID != affiliate.ID {
		return nil, nil
	}
	if maxAge := CookieMaxAgeSeconds(setting.CookieDurationDays); maxAge > 0 {
		if time.Since(visit.CreatedAt) > time.Duration(maxAge)*time.Second {
			return nil, nil
		}
	}
	return &Attribution{Affiliate: affiliate, Visit: visit, Source: AttributionSourceCookie}, nil
}

// resolveCustomer 老客户回退到首次带来该客户的推广员
func (r *AttributionResolver) resolveCustomer(visitor VisitorContext, setting ReferralSetting) (*Attribution, error) {
	customer, err := findCustomer(r.customerRepo, visitor.CustomerUserID, visitor.CustomerEmail)
	if err != nil || customer == nil || customer.ByAffiliateID == nil {
		return nil, err
	}
	affiliate, err := r.affiliateRepo.GetByID(*customer.ByAffiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || affiliate.Status != constants.AffiliateStatusActive {
		return nil, nil
	}
	return &Attribution{Affiliate: affiliate, Source: AttributionSourceCustomer}, nil
}

// TrackVisit 记录推广访问并返回需要写入的 Cookie
func (r *AttributionResolver) TrackVisit(input TrackVisitInput) (*TrackVisitResult, error) {
	setting, err := r.settings.GetReferralSetting()
	if err != nil {
		return nil, err
	}
	affiliate, err := r.lookupAffiliate(input.AffiliateParam, setting.ReferralFormat)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return &TrackVisitResult{Outcome: constants.VisitOutcomeInvalidAffiliate}, nil
	}
	result := &TrackVisitResult{AffiliateID: affiliate.ID, MaxAge: CookieMaxAgeSeconds(setting.CookieDurationDays)}
	if setting.SelfReferralDisabled && input.UserID != 0 && input.UserID == affiliate.UserID {
		result.Outcome = constants.VisitOutcomeSelfVisit
		return result, nil
	}

	param := AffiliateParam(affiliate, setting.ReferralFormat)
	if existing, err := r.resolveCookie(input.Cookie, setting); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.Affiliate.ID == affiliate.ID {
			result.Outcome = constants.VisitOutcomeExisting
			result.VisitID = existing.Visit.ID
			result.CookieValue = FormatAttributionCookie(param, existing.Visit.ID)
			return result, nil
		}
		if !setting.CreditLastReferrer {
			logger.Infow("referral_visit_already_exist",
				"affiliate_id", affiliate.ID,
				"existing_affiliate_id", existing.Affiliate.ID,
				"existing_visit_id", existing.Visit.ID,
			)
			result.Outcome = constants.VisitOutcomeAlreadyExist
			result.MaxAge = 0
			return result, nil
		}
	}

	visit := &models.Visit{
		AffiliateID: affiliate.ID,
		URL:         truncateRunes(input.URL, visitURLMaxRune),
		Referrer:    truncateRunes(input.Referrer, visitURLMaxRune),
		UTMSource:   truncateRunes(input.UTMSource, visitUTMMaxRune),
		UTMMedium:   truncateRunes(input.UTMMedium, visitUTMMaxRune),
		UTMCampaign: truncateRunes(input.UTMCampaign, visitUTMMaxRune),
		IP:          truncateRunes(input.IP, visitIPMaxRune),
	}
	if input.UserID != 0 {
		userID := input.UserID
		visit.UserID = &userID
	}
	err = r.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		locked, err := r.affiliateRepo.WithTx(tx).GetByIDForUpdate(affiliate.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrAffiliateNotFound
		}
		if err := r.visitRepo.WithTx(tx).Create(visit); err != nil {
			return err
		}
		_, err = r.ledger.RecountWithTx(tx, affiliate.ID)
		return err
	})
	if err != nil {
		logger.Warnw("referral_visit_create_failed", "affiliate_id", affiliate.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrVisitCreateFailed, err)
	}

	result.Outcome = constants.VisitOutcomeCreated
	result.VisitID = visit.ID
	result.CookieValue = FormatAttributionCookie(param, visit.ID)
	return result, nil
}

// lookupAffiliate 按 referral_format 定位推广员，仅返回启用状态
func (r *AttributionResolver) lookupAffiliate(param, format string) (*models.Affiliate, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return nil, nil
	}
	var (
		affiliate *models.Affiliate
		err       error
	)
	if format == constants.ReferralFormatUsername {
		affiliate, err = r.affiliateRepo.GetByUsername(param)
	} else {
		id, parseErr := strconv.ParseUint(param, 10, 64)
		if parseErr != nil || id == 0 {
			return nil, nil
		}
		affiliate, err = r.affiliateRepo.GetByID(uint(id))
	}
	if err != nil {
		return nil, err
	}
	if affiliate == nil || affiliate.Status != constants.AffiliateStatusActive {
		return nil, nil
	}
	return affiliate, nil
}

// AffiliateParam 推广链接中的推广员参数
func AffiliateParam(affiliate *models.Affiliate, format string) string {
	if affiliate == nil {
		return ""
	}
	if format == constants.ReferralFormatUsername && strings.TrimSpace(affiliate.User.Username) != "" {
		return affiliate.User.Username
	}
	return strconv.FormatUint(uint64(affiliate.ID), 10)
}

// IsSelfReferral 判断客户是否为推广员本人
func IsSelfReferral(affiliate *models.Affiliate, email string, userID uint) bool {
	if affiliate == nil {
		return false
	}
	if userID != 0 && userID == affiliate.UserID {
		return true
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	if paymentEmail := strings.TrimSpace(affiliate.PaymentEmail); paymentEmail != "" && strings.EqualFold(paymentEmail, email) {
		return true
	}
	return false
}

func findCustomer(repo repository.CustomerRepository, userID uint, email string) (*models.Customer, error) {
	if userID != 0 {
		customer, err := repo.FindByUserID(userID)
		if err != nil || customer != nil {
			return customer, err
		}
	}
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	return repo.FindByEmail(email)
}

func truncateRunes(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
