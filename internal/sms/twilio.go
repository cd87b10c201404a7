package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var (
	errCredentialsRequired = errors.New("twilio account sid and auth token are required")
	errFromRequired        = errors.New("twilio sender number is required")
	errNoMessageID         = errors.New("twilio returned no message sid")
)

// MessageAPI is the Twilio call the sender makes.
type MessageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends text messages through Twilio Programmable Messaging.
type TwilioSender struct {
	api  MessageAPI
	from string
}

// NewTwilioSender builds a sender from account credentials.
func NewTwilioSender(accountSID, authToken, from string) (*TwilioSender, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, errCredentialsRequired
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewTwilioSenderWithAPI(client.Api, from)
}

// NewTwilioSenderWithAPI builds a sender over an existing message API.
func NewTwilioSenderWithAPI(api MessageAPI, from string) (*TwilioSender, error) {
	if strings.TrimSpace(from) == "" {
		return nil, errFromRequired
	}
	return &TwilioSender{api: api, from: from}, nil
}

// Send sends body to the given number and returns the message SID. The
// Twilio client does not take a context; ctx is only checked up front.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Sid == nil {
		return "", errNoMessageID
	}
	return *resp.Sid, nil
}
