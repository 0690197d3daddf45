package saferpay

import paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"

type requestHeader struct {
	SpecVersion    string `json:"SpecVersion"`
	CustomerID     string `json:"CustomerId"`
	RequestID      string `json:"RequestId"`
	RetryIndicator int    `json:"RetryIndicator"`
}

type amount struct {
	Value        string `json:"Value"`
	CurrencyCode string `json:"CurrencyCode"`
}

type paymentBody struct {
	Amount      amount `json:"Amount"`
	OrderID     string `json:"OrderId"`
	Description string `json:"Description"`
}

type returnURLs struct {
	Success string `json:"Success"`
	Fail    string `json:"Fail"`
	Abort   string `json:"Abort"`
}

type notification struct {
	NotifyURL string `json:"NotifyUrl"`
}

type initializeRequest struct {
	RequestHeader requestHeader `json:"RequestHeader"`
	TerminalID    string        `json:"TerminalId"`
	Payment       paymentBody   `json:"Payment"`
	ReturnURLs    returnURLs    `json:"ReturnUrls"`
	Notification  *notification `json:"Notification,omitempty"`
}

type initializeResponse struct {
	Token       string `json:"Token"`
	Expiration  string `json:"Expiration"`
	RedirectURL string `json:"RedirectUrl"`
}

type assertRequest struct {
	RequestHeader requestHeader `json:"RequestHeader"`
	Token         string        `json:"Token"`
}

type assertResponse struct {
	Transaction struct {
		Type   string `json:"Type"`
		Status string `json:"Status"`
		ID     string `json:"Id"`
		Amount amount `json:"Amount"`
	} `json:"Transaction"`
	PaymentMeans *paymentMeans `json:"PaymentMeans"`
}

type paymentMeans struct {
	Brand struct {
		PaymentMethod string `json:"PaymentMethod"`
		Name          string `json:"Name"`
	} `json:"Brand"`
	DisplayText string `json:"DisplayText"`
	Card        *struct {
		MaskedNumber string `json:"MaskedNumber"`
		ExpYear      int    `json:"ExpYear"`
		ExpMonth     int    `json:"ExpMonth"`
		HolderName   string `json:"HolderName"`
	} `json:"Card"`
}

func (p *paymentMeans) toDomain() *paymentdomain.PaymentMeans {
	means := &paymentdomain.PaymentMeans{
		Brand:         p.Brand.Name,
		PaymentMethod: p.Brand.PaymentMethod,
		DisplayText:   p.DisplayText,
	}
	if p.Card != nil {
		means.Card = &paymentdomain.Card{
			MaskedNumber: p.Card.MaskedNumber,
			HolderName:   p.Card.HolderName,
			ExpMonth:     p.Card.ExpMonth,
			ExpYear:      p.Card.ExpYear,
		}
	}
	return means
}

type transactionReference struct {
	TransactionID string `json:"TransactionId"`
}

type transactionRequest struct {
	RequestHeader        requestHeader        `json:"RequestHeader"`
	TransactionReference transactionReference `json:"TransactionReference"`
}

type refundBody struct {
	Amount amount `json:"Amount"`
}

type refundRequest struct {
	RequestHeader    requestHeader        `json:"RequestHeader"`
	Refund           refundBody           `json:"Refund"`
	CaptureReference transactionReference `json:"CaptureReference"`
}
