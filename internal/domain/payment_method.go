package domain

import "fmt"

var paymentTypeNames = map[int]string{
	1: "Credit Card",
	2: "Billet",
	3: "Bank Transfer",
	4: "Account deposit",
}

var paymentMethodNames = map[int]string{
	101: "Credit Card Visa",
	102: "Credit Card MasterCard",
	103: "Credit Card American Express",
	104: "Credit Card Diners",
	105: "Credit Card Hipercard",
	106: "Credit Card Aura",
	107: "Credit Card Elo",
	108: "Credit Card PLENOCard",
	109: "Credit Card PersonalCard",
	110: "Credit Card JCB",
	111: "Credit Card Discover",
	112: "Credit Card BrasilCard",
	113: "Credit Card FORTBRASIL",
	114: "Credit Card CARDBAN",
	115: "Credit Card VALECARD",
	116: "Credit Card Cabal",
	117: "Credit Card Mais!",
	118: "Credit Card Avista",
	119: "Credit Card GRANDCARD",
	201: "Billet Bradesco",
	202: "Billet Santander",
	301: "Bank Transfer Bradesco",
	302: "Bank Transfer Itau",
	303: "Bank Transfer Unibanco",
	304: "Bank Transfer Banco do Brasil",
	305: "Bank Transfer Real",
	306: "Bank Transfer Banrisul",
	307: "Bank Transfer HSBC",
	401: "PagSeguro credit",
	501: "Oi Paggo",
	701: "Account deposit",
}

// PaymentTypeName returns the human label for a provider payment type code.
func PaymentTypeName(code int) string {
	if name, ok := paymentTypeNames[code]; ok {
		return name
	}
	return "Unknown"
}

// PaymentMethodName returns the human label for a provider payment method code.
func PaymentMethodName(code int) string {
	if name, ok := paymentMethodNames[code]; ok {
		return name
	}
	return "Unknown"
}

// PaymentMethodLabel combines both codes into the label stored on the order,
// preferring the more specific method code when the provider sent one.
func PaymentMethodLabel(typeCode, methodCode *int) string {
	if methodCode != nil {
		return PaymentMethodName(*methodCode)
	}
	if typeCode != nil {
		return PaymentTypeName(*typeCode)
	}
	return ""
}

// FormatInvoiceReference builds the provider-visible correlation key for an
// order. ResolveInvoiceReference is its inverse.
func FormatInvoiceReference(prefix string, orderID int64) string {
	return fmt.Sprintf("%s%d", prefix, orderID)
}
