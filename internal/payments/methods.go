package payments

import (
	"context"
	"strings"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

// MethodInfo is a registry entry.
type MethodInfo struct {
	Method      enums.PaymentMethod       `json:"method"`
	Class       enums.PaymentChannelClass `json:"class"`
	DisplayName string                    `json:"display_name"`
	Enabled     bool                      `json:"-"`
}

// DefaultMethods is the static method registry in display order.
func DefaultMethods() []MethodInfo {
	names := map[enums.PaymentMethod]string{
		enums.PaymentMethodMPesa:          "M-Pesa",
		enums.PaymentMethodAirtelMoney:    "Airtel Money",
		enums.PaymentMethodTigoPesa:       "Tigo Pesa",
		enums.PaymentMethodHaloPesa:       "HaloPesa",
		enums.PaymentMethodAzamPesa:       "AzamPesa",
		enums.PaymentMethodVisa:           "Visa",
		enums.PaymentMethodMastercard:     "Mastercard",
		enums.PaymentMethodCRDBSimBanking: "CRDB SimBanking",
		enums.PaymentMethodNMBMobile:      "NMB Mobile",
		enums.PaymentMethodSelcomCheckout: "Selcom Checkout",
	}
	methods := enums.PaymentMethods()
	out := make([]MethodInfo, 0, len(methods))
	for _, method := range methods {
		out = append(out, MethodInfo{
			Method:      method,
			Class:       method.Class(),
			DisplayName: names[method],
			Enabled:     true,
		})
	}
	return out
}

// RegistryMethods is the static registry restricted to offered. An empty
// offered list keeps every method enabled; unknown tags are ignored.
func RegistryMethods(offered []string) []MethodInfo {
	methods := DefaultMethods()
	if len(offered) == 0 {
		return methods
	}
	keep := make(map[enums.PaymentMethod]bool, len(offered))
	for _, raw := range offered {
		if method, err := enums.ParsePaymentMethod(raw); err == nil {
			keep[method] = true
		}
	}
	for i := range methods {
		methods[i].Enabled = keep[methods[i].Method]
	}
	return methods
}

// Unavailability reasons reported in error details and method listings.
const (
	ReasonDisabled      = "disabled"
	ReasonConfig        = "disabled_by_config"
	ReasonMaintenance   = "under_maintenance"
	ReasonUnreachable   = "provider_unreachable"
	ReasonNotConfigured = "channel_not_configured"
)

type MaintenanceFlags interface {
	MethodUnderMaintenance(ctx context.Context, method string) (bool, error)
}

// MethodAvailability is one row of the method listing.
type MethodAvailability struct {
	MethodInfo
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Availability decides whether a method may be used right now. The checks
// run in order: static registry, configuration, then the Redis maintenance
// flag. None of them contacts a provider.
type Availability struct {
	methods  map[enums.PaymentMethod]MethodInfo
	ordered  []MethodInfo
	disabled map[enums.PaymentMethod]struct{}
	flags    MaintenanceFlags
	logg     *logger.Logger
}

// NewAvailability builds the checker. flags may be nil when Redis is not wired.
func NewAvailability(methods []MethodInfo, disabled []string, flags MaintenanceFlags, logg *logger.Logger) *Availability {
	if methods == nil {
		methods = RegistryMethods(nil)
	}
	a := &Availability{
		methods:  make(map[enums.PaymentMethod]MethodInfo, len(methods)),
		ordered:  methods,
		disabled: make(map[enums.PaymentMethod]struct{}, len(disabled)),
		flags:    flags,
		logg:     logg,
	}
	for _, info := range methods {
		a.methods[info.Method] = info
	}
	for _, raw := range disabled {
		if method, err := enums.ParsePaymentMethod(raw); err == nil {
			a.disabled[method] = struct{}{}
		}
	}
	return a
}

// Check returns a CodeChannelUnavailable error when method cannot be used.
func (a *Availability) Check(ctx context.Context, method enums.PaymentMethod) error {
	if reason := a.reason(ctx, method); reason != "" {
		return unavailable(method, reason)
	}
	return nil
}

// List reports every registered method with its current availability.
func (a *Availability) List(ctx context.Context) []MethodAvailability {
	out := make([]MethodAvailability, 0, len(a.ordered))
	for _, info := range a.ordered {
		reason := a.reason(ctx, info.Method)
		out = append(out, MethodAvailability{MethodInfo: info, Available: reason == "", Reason: reason})
	}
	return out
}

func (a *Availability) reason(ctx context.Context, method enums.PaymentMethod) string {
	info, ok := a.methods[method]
	if !ok || !info.Enabled {
		return ReasonDisabled
	}
	if _, off := a.disabled[method]; off {
		return ReasonConfig
	}
	if a.flags == nil {
		return ""
	}
	flagged, err := a.flags.MethodUnderMaintenance(ctx, string(method))
	if err != nil {
		// an unreadable flag leaves the method available
		if a.logg != nil {
			a.logg.Warn(a.logg.WithFields(ctx, map[string]any{"method": method, "error": err.Error()}), "payments.maintenance_flag_unreadable")
		}
		return ""
	}
	if flagged {
		return ReasonMaintenance
	}
	return ""
}

func unavailable(method enums.PaymentMethod, reason string) error {
	return pkgerrors.New(pkgerrors.CodeChannelUnavailable, strings.ReplaceAll(reason, "_", " ")).
		WithDetails(map[string]any{"method": method, "reason": reason})
}
