package resources

import (
	"encoding/json"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Envelope is the {"data": ...} wrapper every resource API request and response uses
type Envelope struct {
	Data any `json:"data"`
}

type Document struct {
	Identification string `json:"identification"`
	Rel            string `json:"rel"`
}

type LoggedUser struct {
	Document Document `json:"document"`
}

type Account struct {
	ISPB        string `json:"ispb"`
	Issuer      string `json:"issuer"`
	Number      string `json:"number"`
	AccountType string `json:"accountType"`
}

type EnrollmentRequest struct {
	LoggedUser    LoggedUser `json:"loggedUser"`
	Permissions   []string   `json:"permissions"`
	DebtorAccount Account    `json:"debtorAccount"`
}

type ScreenDimensions struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Type      string  `json:"type"`
}

type Integrity struct {
	AppRecognitionVerdict    string `json:"appRecognitionVerdict"`
	DeviceRecognitionVerdict string `json:"deviceRecognitionVerdict"`
}

// RiskSignals is the device telemetry sent before PAR and with the consent authorization
type RiskSignals struct {
	DeviceID             string           `json:"deviceId"`
	IsRootedDevice       bool             `json:"isRootedDevice"`
	ScreenBrightness     int              `json:"screenBrightness"`
	ElapsedTimeSinceBoot int64            `json:"elapsedTimeSinceBoot"`
	OSVersion            string           `json:"osVersion"`
	UserTimeZoneOffset   string           `json:"userTimeZoneOffset"`
	Language             string           `json:"language"`
	ScreenDimensions     ScreenDimensions `json:"screenDimensions"`
	AccountTenure        string           `json:"accountTenure"`
	Geolocation          Geolocation      `json:"geolocation"`
	IsCallInProgress     bool             `json:"isCallInProgress"`
	IsDevModeEnabled     bool             `json:"isDevModeEnabled"`
	IsMockGPS            bool             `json:"isMockGPS"`
	IsEmulated           bool             `json:"isEmulated"`
	IsMonkeyRunner       bool             `json:"isMonkeyRunner"`
	IsCharging           bool             `json:"isCharging"`
	AntennaInformation   string           `json:"antennaInformation"`
	IsUsbConnected       bool             `json:"isUsbConnected"`
	Integrity            Integrity        `json:"integrity"`
}

type FidoOptionsRequest struct {
	RP        string              `json:"rp"`
	Platform  oauthmodel.Platform `json:"platform"`
	ConsentID string              `json:"consentId,omitempty"`
}

type Creditor struct {
	PersonType string `json:"personType"`
	CPFCNPJ    string `json:"cpfCnpj"`
	Name       string `json:"name"`
}

type PaymentDetails struct {
	LocalInstrument string  `json:"localInstrument"`
	Proxy           string  `json:"proxy"`
	CreditorAccount Account `json:"creditorAccount"`
}

type Payment struct {
	Type     string         `json:"type"`
	Date     string         `json:"date"`
	Currency string         `json:"currency"`
	Amount   string         `json:"amount"`
	Details  PaymentDetails `json:"details"`
}

type PaymentConsentRequest struct {
	LoggedUser    LoggedUser `json:"loggedUser"`
	Creditor      Creditor   `json:"creditor"`
	Payment       Payment    `json:"payment"`
	DebtorAccount Account    `json:"debtorAccount"`
}

type ConsentAuthorization struct {
	EnrollmentID  string          `json:"enrollmentId"`
	RiskSignals   RiskSignals     `json:"riskSignals"`
	FidoAssertion json.RawMessage `json:"fidoAssertion"`
}

func loggedUser() LoggedUser {
	return LoggedUser{Document: Document{Identification: "11111111111", Rel: "CPF"}}
}

func debtorAccount() Account {
	return Account{ISPB: "12345678", Issuer: "1774", Number: "1234567890", AccountType: "CACC"}
}

// DefaultEnrollment is the enrollment created for every flow
func DefaultEnrollment() EnrollmentRequest {
	return EnrollmentRequest{
		LoggedUser:    loggedUser(),
		Permissions:   []string{"PAYMENTS_INITIATE"},
		DebtorAccount: debtorAccount(),
	}
}

// DefaultRiskSignals is a fixed, plausible browser device profile
func DefaultRiskSignals() RiskSignals {
	return RiskSignals{
		DeviceID:             "5ad82a8f-37e5-4369-a1a3-be4b1fb9c034",
		IsRootedDevice:       false,
		ScreenBrightness:     90,
		ElapsedTimeSinceBoot: 28800000,
		OSVersion:            "16.6",
		UserTimeZoneOffset:   "-03",
		Language:             "pt",
		ScreenDimensions:     ScreenDimensions{Height: 1080, Width: 1920},
		AccountTenure:        "2023-09-01T00:00:00.000Z",
		Geolocation:          Geolocation{Latitude: -23.5475, Longitude: -46.63611, Type: "COARSE"},
		IsCallInProgress:     false,
		IsDevModeEnabled:     false,
		IsMockGPS:            false,
		IsEmulated:           false,
		IsMonkeyRunner:       false,
		IsCharging:           false,
		AntennaInformation:   "CELLULAR",
		IsUsbConnected:       false,
		Integrity: Integrity{
			AppRecognitionVerdict:    "PLAY_RECOGNIZED",
			DeviceRecognitionVerdict: "MEETS_DEVICE_INTEGRITY",
		},
	}
}

// DefaultPaymentConsent is a single PIX transfer dated today
func DefaultPaymentConsent() PaymentConsentRequest {
	return PaymentConsentRequest{
		LoggedUser: loggedUser(),
		Creditor: Creditor{
			PersonType: "PESSOA_NATURAL",
			CPFCNPJ:    "22222222222",
			Name:       "Marco Antonio de Brito",
		},
		Payment: Payment{
			Type:     "PIX",
			Date:     NowTimeFunc().Format(time.DateOnly),
			Currency: "BRL",
			Amount:   "100.00",
			Details: PaymentDetails{
				LocalInstrument: "DICT",
				Proxy:           "22222222222",
				CreditorAccount: Account{ISPB: "99999004", Issuer: "0001", Number: "12345678", AccountType: "CACC"},
			},
		},
		DebtorAccount: debtorAccount(),
	}
}
