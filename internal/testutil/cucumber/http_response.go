package cucumber

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/itchyny/gojq"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.TheResponseShouldMatchJSONDoc)
		ctx.Step(`^the response should contain json:$`, s.TheResponseShouldContainJSONDoc)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
		ctx.Step(`^the response should not contain "([^"]*)"$`, s.theResponseShouldNotContain)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelectionFromTheResponseAs)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the "([^"]*)" selection from the response should match json:$`, s.theSelectionFromTheResponseShouldMatchJSON)
		ctx.Step(`^the response header "([^"]*)" should match "([^"]*)"$`, s.theResponseHeaderShouldMatch)
		ctx.Step(`^the response header "([^"]*)" should start with "([^"]*)"$`, s.theResponseHeaderShouldStartWith)
		ctx.Step(`^the response should redirect to "([^"]*)"$`, s.theResponseShouldRedirectTo)
		ctx.Step(`^\${([^}]*)} is not empty$`, s.variableIsNotEmpty)
		ctx.Step(`^"([^"]*)" should match "([^"]*)"$`, s.textShouldMatchText)
	})
}

func (s *TestScenario) variableIsNotEmpty(name string) error {
	value, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if value == nil || value == "" {
		return fmt.Errorf("variable ${%s} is empty", name)
	}
	return nil
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	actual := session.Resp.StatusCode
	if expected != actual {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) TheResponseShouldMatchJSONDoc(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustMatch(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) TheResponseShouldContainJSONDoc(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustContain(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) theResponseShouldContain(expected string) error {
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	responseBody := string(s.Session().RespBytes)
	if !strings.Contains(responseBody, expanded) {
		return fmt.Errorf("expected response to contain '%s', but it does not. Response body: %s", expanded, responseBody)
	}
	return nil
}

func (s *TestScenario) theResponseShouldNotContain(unexpected string) error {
	expanded, err := s.Expand(unexpected)
	if err != nil {
		return err
	}
	if strings.Contains(string(s.Session().RespBytes), expanded) {
		return fmt.Errorf("expected response not to contain '%s'", expanded)
	}
	return nil
}

func (s *TestScenario) textShouldMatchText(actual, expected string) error {
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	actual, err = s.Expand(actual)
	if err != nil {
		return err
	}
	if expanded != actual {
		return fmt.Errorf("actual does not match expected, diff:\n%s", unifiedDiff(expanded, actual))
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldMatch(header, expected string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	actual := session.Resp.Header.Get(header)
	if expanded != actual {
		return fmt.Errorf("response header '%s' does not match expected: %v, actual: %v, body:\n%s", header, expanded, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldStartWith(header, prefix string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	prefix, err := s.Expand(prefix)
	if err != nil {
		return err
	}
	actual := session.Resp.Header.Get(header)
	if !strings.HasPrefix(actual, prefix) {
		return fmt.Errorf("response header '%s' does not start with prefix: %v, actual: %v, body:\n%s", header, prefix, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) theResponseShouldRedirectTo(location string) error {
	if err := s.theResponseCodeShouldBe(302); err != nil {
		return err
	}
	return s.theResponseHeaderShouldMatch("Location", location)
}

func (s *TestScenario) selectFromResponse(selector string) (interface{}, error) {
	doc, err := s.Session().RespJSON()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	iter := query.Run(doc)
	next, found := iter.Next()
	if !found {
		return nil, fmt.Errorf("expected JSON does not have node that matches selector: %s", selector)
	}
	if err, ok := next.(error); ok {
		return nil, fmt.Errorf("selector %s failed: %w", selector, err)
	}
	return next, nil
}

func (s *TestScenario) iStoreTheSelectionFromTheResponseAs(selector, as string) error {
	value, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	s.Variables[as] = value
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector, expected string) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	actualStr, err := ToString(actual, selector, JSONEncoding)
	if err != nil {
		return err
	}
	if actual == nil {
		actualStr = "null"
	}
	if actualStr != expected {
		return fmt.Errorf("selected JSON does not match. expected: %v, actual: %v", expected, actualStr)
	}
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatchJSON(selector string, expected *godog.DocString) error {
	actual, err := s.selectFromResponse(selector)
	if err != nil {
		return err
	}
	b, err := json.Marshal(actual)
	if err != nil {
		return err
	}
	return s.JSONMustMatch(string(b), expected.Content, true)
}
