package cucumber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// CSRFField is the form field the journal reads its CSRF token from.
const CSRFField = "csrfmiddlewaretoken"

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I (GET|POST|DELETE) path "([^"]*)"$`, s.sendHTTPRequest)
		ctx.Step(`^I POST path "([^"]*)" with form:$`, s.postForm)
		ctx.Step(`^I POST path "([^"]*)" with form and no CSRF token:$`, s.postFormWithoutCSRF)
		ctx.Step(`^I follow the redirect$`, s.followRedirect)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a GET on path "([^"]*)" response code to match "([^"]*)"$`, s.iWaitUpToSecondsForAGETOnPathResponseCodeToMatch)
		ctx.Step(`^I set the "([^"]*)" header to "([^"]*)"$`, s.iSetTheHeaderTo)
	})
}

func (s *TestScenario) sendHTTPRequest(method, path string) error {
	return s.SendHTTPRequest(method, path, nil)
}

func (s *TestScenario) postForm(path string, table *godog.Table) error {
	values, err := s.formValues(table)
	if err != nil {
		return err
	}
	if !values.Has(CSRFField) {
		values.Set(CSRFField, s.Session().CSRFToken)
	}
	return s.SendHTTPRequest(http.MethodPost, path, values)
}

func (s *TestScenario) postFormWithoutCSRF(path string, table *godog.Table) error {
	values, err := s.formValues(table)
	if err != nil {
		return err
	}
	return s.SendHTTPRequest(http.MethodPost, path, values)
}

// formValues reads a two column | field | value | table. Values are expanded.
func (s *TestScenario) formValues(table *godog.Table) (url.Values, error) {
	values := url.Values{}
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return nil, fmt.Errorf("form rows must have exactly two cells: field and value")
		}
		value, err := s.Expand(row.Cells[1].Value)
		if err != nil {
			return nil, err
		}
		values.Add(row.Cells[0].Value, value)
	}
	return values, nil
}

// SendHTTPRequest sends a request as the current user. A non-nil form is sent
// url-encoded. Pages are requested as JSON unless an Accept header was set.
func (s *TestScenario) SendHTTPRequest(method, path string, form url.Values) (err error) {
	defer func() {
		switch t := recover().(type) {
		case string:
			err = errors.New(t)
		case error:
			err = t
		}
	}()

	session := s.Session()

	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}

	fullURL := expandedPath
	if u, err := url.Parse(expandedPath); err != nil || u.Scheme == "" {
		fullURL = s.Suite.APIURL + expandedPath
	}

	if session.Resp != nil {
		_ = session.Resp.Body.Close()
	}
	session.Resp = nil
	session.SetRespBytes(nil)

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(context.Background(), method, fullURL, body)
	if err != nil {
		return err
	}

	// Session headers apply to one request only.
	req.Header = session.Header
	session.Header = http.Header{}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if form != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	session.Resp = resp
	session.LastURL = fullURL
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	session.SetRespBytes(respBytes)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var page struct {
			CSRFToken string `json:"csrf_token"`
		}
		if json.Unmarshal(respBytes, &page) == nil && page.CSRFToken != "" {
			session.CSRFToken = page.CSRFToken
		}
	}
	return nil
}

func (s *TestScenario) followRedirect() error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	location := session.Resp.Header.Get("Location")
	if location == "" {
		return fmt.Errorf("last response (%d) is not a redirect", session.Resp.StatusCode)
	}
	base, err := url.Parse(session.LastURL)
	if err != nil {
		return err
	}
	target, err := base.Parse(location)
	if err != nil {
		return err
	}
	return s.SendHTTPRequest(http.MethodGet, target.String(), nil)
}

func (s *TestScenario) iSetTheHeaderTo(name, value string) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	s.Session().Header.Set(name, expanded)
	return nil
}

func (s *TestScenario) iWaitUpToSecondsForAGETOnPathResponseCodeToMatch(timeout float64, path string, expected int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout*float64(time.Second)))
	defer cancel()

	var lastErr error
	for {
		err := s.sendHTTPRequest(http.MethodGet, path)
		if err == nil {
			err = s.theResponseCodeShouldBe(expected)
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("condition not met after %.f seconds: %w", timeout, lastErr)
		default:
			time.Sleep(time.Duration(timeout * float64(time.Second) / 10.0))
		}
	}
}
