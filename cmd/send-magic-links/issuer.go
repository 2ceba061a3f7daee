package main

import (
	"context"
	"docgate/identity"
	"docgate/models"
	"docgate/utils"
	"fmt"
	"log"

	"golang.org/x/time/rate"
)

// Mailer delivers a generated link to its owner.
type Mailer interface {
	Send(ctx context.Context, email, link string) error
}

type sendgridMailer struct {
	apiKey string
	from   string
}

func (m sendgridMailer) Send(_ context.Context, email, link string) error {
	return utils.SendMagicLinkEmail(m.apiKey, m.from, email, link)
}

// logMailer prints the link for the operator to pass on by hand.
type logMailer struct{}

func (logMailer) Send(_ context.Context, email, link string) error {
	log.Printf("magic link for %s: %s", email, link)
	return nil
}

type Result struct {
	Email string
	Link  *models.GeneratedLink
	Err   error
}

// Issuer generates one admin magic link per approved address, one at a time.
type Issuer struct {
	Client     *identity.Client
	RedirectTo string
	Mailer     Mailer
	Limiter    *rate.Limiter
	// Record stores the outcome of each address; nil skips the audit trail.
	Record func(ctx context.Context, issuance models.Issuance) error
}

func (i *Issuer) Issue(ctx context.Context, emails []string) []Result {
	results := make([]Result, 0, len(emails))
	for _, email := range emails {
		if i.Limiter != nil {
			if err := i.Limiter.Wait(ctx); err != nil {
				results = append(results, Result{Email: email, Err: err})
				continue
			}
		}
		res := i.issueOne(ctx, email)
		if res.Err != nil {
			log.Printf("Error sending to %s: %v", email, res.Err)
		} else {
			log.Printf("Magic link sent to: %s", email)
		}
		i.record(ctx, res)
		results = append(results, res)
	}
	return results
}

func (i *Issuer) issueOne(ctx context.Context, email string) Result {
	link, err := i.Client.GenerateLink(ctx, email, i.RedirectTo)
	if err != nil {
		return Result{Email: email, Err: err}
	}
	if i.Mailer != nil {
		if err := i.Mailer.Send(ctx, email, link.ActionLink); err != nil {
			return Result{Email: email, Link: link, Err: fmt.Errorf("mailing link: %w", err)}
		}
	}
	return Result{Email: email, Link: link}
}

func (i *Issuer) record(ctx context.Context, res Result) {
	if i.Record == nil {
		return
	}
	issuance := models.Issuance{Email: res.Email, Source: models.SourceCLI, OK: res.Err == nil}
	if res.Err != nil {
		issuance.Error = res.Err.Error()
	}
	if err := i.Record(ctx, issuance); err != nil {
		log.Println("error recording issuance: ", err)
	}
}

// Failed counts the addresses that did not get a link.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
