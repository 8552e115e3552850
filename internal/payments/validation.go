package payments

import (
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

const countryCode = "255"

// Two digit network codes that follow the country code, per wallet.
var walletPrefixes = map[enums.PaymentMethod][]string{
	enums.PaymentMethodMPesa:       {"74", "75", "76"},
	enums.PaymentMethodAirtelMoney: {"68", "69", "78"},
	enums.PaymentMethodTigoPesa:    {"65", "67", "71", "77"},
	enums.PaymentMethodHaloPesa:    {"61", "62"},
}

// AzamPesa wallets are opened on any Tanzanian mobile number.
var allMobilePrefixes = []string{"61", "62", "65", "67", "68", "69", "71", "74", "75", "76", "77", "78"}

// NormalizeMSISDN converts the local and international spellings of a
// Tanzanian mobile number into 255XXXXXXXXX.
func NormalizeMSISDN(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}
	if !isDigits(cleaned) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must contain digits only")
	}

	var national string
	switch {
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, countryCode):
		national = cleaned[3:]
	case len(cleaned) == 10 && strings.HasPrefix(cleaned, "0"):
		national = cleaned[1:]
	case len(cleaned) == 9:
		national = cleaned
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number is not a Tanzanian mobile number")
	}
	if national[0] != '6' && national[0] != '7' {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number is not a Tanzanian mobile number")
	}
	return countryCode + national, nil
}

// ValidateMethodDetails checks and normalizes the inputs method needs.
// Bank methods take no details and any that were sent are dropped.
func ValidateMethodDetails(method enums.PaymentMethod, details MethodDetails, now time.Time) (MethodDetails, error) {
	switch method.Class() {
	case enums.PaymentChannelClassPush:
		msisdn, err := validateWalletNumber(method, details.Phone)
		if err != nil {
			return MethodDetails{}, err
		}
		return MethodDetails{Phone: msisdn}, nil
	case enums.PaymentChannelClassCard:
		card, err := validateCard(method, details.Card, now)
		if err != nil {
			return MethodDetails{}, err
		}
		return MethodDetails{Card: card}, nil
	case enums.PaymentChannelClassBank:
		return MethodDetails{}, nil
	}
	return MethodDetails{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
}

// validateWalletNumber normalizes phone and checks that its network code
// belongs to the wallet behind method.
func validateWalletNumber(method enums.PaymentMethod, phone string) (string, error) {
	msisdn, err := NormalizeMSISDN(phone)
	if err != nil {
		return "", err
	}
	prefixes, ok := walletPrefixes[method]
	if !ok {
		prefixes = allMobilePrefixes
	}
	network := msisdn[3:5]
	for _, prefix := range prefixes {
		if prefix == network {
			return msisdn, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number does not belong to the selected wallet").
		WithDetails(map[string]any{"method": method, "network_code": network})
}

// validateCard checks raw card details before any processor is contacted.
// Tokenized cards are passed through untouched.
func validateCard(method enums.PaymentMethod, card *CardInput, now time.Time) (*CardInput, error) {
	if card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details are required")
	}
	out := *card
	out.Token = strings.TrimSpace(out.Token)
	if out.Token != "" {
		return &out, nil
	}

	out.Number = strings.NewReplacer(" ", "", "-", "").Replace(out.Number)
	if len(out.Number) < 12 || len(out.Number) > 19 || !isDigits(out.Number) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card number is malformed")
	}
	if !luhnValid(out.Number) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card number failed the checksum")
	}
	if network := cardNetwork(out.Number); network != method {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card number does not match the selected network").
			WithDetails(map[string]any{"method": method, "detected": network})
	}

	out.CVV = strings.TrimSpace(out.CVV)
	if (len(out.CVV) != 3 && len(out.CVV) != 4) || !isDigits(out.CVV) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card security code is malformed")
	}
	if out.ExpMonth < 1 || out.ExpMonth > 12 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card expiry month is invalid")
	}
	if out.ExpYear < 100 {
		out.ExpYear += 2000
	}
	// A card is valid through the last day of its expiry month.
	expiresAt := time.Date(out.ExpYear, time.Month(out.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(expiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card has expired")
	}
	out.Holder = strings.TrimSpace(out.Holder)
	return &out, nil
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func cardNetwork(number string) enums.PaymentMethod {
	if strings.HasPrefix(number, "4") {
		return enums.PaymentMethodVisa
	}
	if len(number) >= 4 {
		if p2, err := strconv.Atoi(number[:2]); err == nil && p2 >= 51 && p2 <= 55 {
			return enums.PaymentMethodMastercard
		}
		if p4, err := strconv.Atoi(number[:4]); err == nil && p4 >= 2221 && p4 <= 2720 {
			return enums.PaymentMethodMastercard
		}
	}
	return ""
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
