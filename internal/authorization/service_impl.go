package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	ObjectPricing  = "pricing"
	ObjectBundle   = "bundle"
	ObjectCredits  = "credits"
	ObjectWallet   = "wallet"
	ObjectPurchase = "purchase"
	ObjectStats    = "stats"
)

const (
	ActionPricingUpdate = "pricing.update"

	ActionBundleCreate = "bundle.create"
	ActionBundleUpdate = "bundle.update"
	ActionBundleDelete = "bundle.delete"

	ActionCreditsGrant     = "credits.grant"
	ActionCreditsUsageList = "credits.usage.list"

	ActionWalletAdjust    = "wallet.adjust"
	ActionWalletReconcile = "wallet.reconcile"

	ActionPurchaseList   = "purchase.list"
	ActionPurchaseRefund = "purchase.refund"
	ActionPurchaseFail   = "purchase.fail"

	ActionStatsView = "stats.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize binds the actor to its forwarded role and checks the policy.
// The proxy is the source of truth for roles, so a changed role replaces
// the previous binding.
func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	userID := strings.TrimSpace(actor.UserID)
	if userID == "" {
		return ErrInvalidActor
	}
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", userID)
	if err := s.ensureGrouping(subject, "role:"+role); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		logger.WithUser(logger.WithContext(ctx, s.log), userID).Warn("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectPricing, ActionPricingUpdate},

		{"role:admin", ObjectBundle, ActionBundleCreate},
		{"role:admin", ObjectBundle, ActionBundleUpdate},
		{"role:admin", ObjectBundle, ActionBundleDelete},

		{"role:admin", ObjectCredits, ActionCreditsGrant},
		{"role:admin", ObjectCredits, ActionCreditsUsageList},

		{"role:admin", ObjectWallet, ActionWalletAdjust},
		{"role:admin", ObjectWallet, ActionWalletReconcile},

		{"role:admin", ObjectPurchase, ActionPurchaseList},
		{"role:admin", ObjectPurchase, ActionPurchaseRefund},
		{"role:admin", ObjectPurchase, ActionPurchaseFail},

		{"role:admin", ObjectStats, ActionStatsView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
