package bdd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chirino/memory-journal/internal/cmd/serve"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/chirino/memory-journal/internal/security"
	"github.com/chirino/memory-journal/internal/testutil/cucumber"
	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		if m, ok := s.Suite.Extra["mockGoogle"].(*MockGoogle); ok {
			s.Variables["google_issuer"] = m.Server.URL
		}
		ctx.Step(`^I am an anonymous visitor$`, a.iAmAnAnonymousVisitor)
		ctx.Step(`^I am logged in as "([^"]*)"$`, a.iAmLoggedInAs)
		ctx.Step(`^I am logged in as "([^"]*)" with VK as "([^"]*)" "([^"]*)"$`, a.iAmLoggedInWithVK)
		ctx.Step(`^Google signs me in as "([^"]*)" named "([^"]*)"$`, a.googleSignsMeIn)
		ctx.Step(`^Google denies the next login$`, a.googleDeniesTheNextLogin)
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

func server(s *cucumber.TestScenario) *serve.Server {
	return s.Suite.Context.(*serve.Server)
}

func (a *authSteps) iAmAnAnonymousVisitor() error {
	a.s.CurrentUser = ""
	return nil
}

func (a *authSteps) iAmLoggedInAs(name string) error {
	return a.login(name, registrystore.SocialLogin{
		Provider: "google",
		UID:      "google-" + name,
		Email:    name + "@example.com",
		ExtraData: map[string]interface{}{
			"name":    name,
			"picture": "https://example.com/" + name + ".png",
		},
	})
}

func (a *authSteps) iAmLoggedInWithVK(name, firstName, lastName string) error {
	return a.login(name, registrystore.SocialLogin{
		Provider: "vk",
		UID:      "vk-" + name,
		ExtraData: map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"photo_big":  "https://example.com/" + name + "-big.jpg",
		},
	})
}

// login links a social account for name and plants a signed session cookie
// in that user's browser, skipping the provider round trip.
func (a *authSteps) login(name string, login registrystore.SocialLogin) error {
	srv := server(a.s)
	user, err := srv.Store.LoginSocialAccount(context.Background(), login)
	if err != nil {
		return fmt.Errorf("link %s account for %s: %w", login.Provider, name, err)
	}

	a.s.Suite.Mu.Lock()
	if a.s.Users[name] == nil {
		a.s.Users[name] = &cucumber.TestUser{Name: name}
	}
	a.s.Users[name].UserID = user.ID
	a.s.Suite.Mu.Unlock()

	a.s.CurrentUser = name
	a.s.Variables[name] = map[string]interface{}{"id": int(user.ID)}

	session := &security.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CSRF:      uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
	}
	token, err := srv.Sessions.Encode(session)
	if err != nil {
		return err
	}
	base, err := url.Parse(a.s.Suite.APIURL)
	if err != nil {
		return err
	}
	browser := a.s.Session()
	browser.Client.Jar.SetCookies(base, []*http.Cookie{{
		Name:  srv.Sessions.CookieName(),
		Value: token,
		Path:  "/",
	}})
	browser.CSRFToken = session.CSRF
	return nil
}

func mockGoogle(s *cucumber.TestScenario) (*MockGoogle, error) {
	m, ok := s.Suite.Extra["mockGoogle"].(*MockGoogle)
	if !ok {
		return nil, fmt.Errorf("mock Google provider is not running")
	}
	return m, nil
}

func (a *authSteps) googleSignsMeIn(uid, name string) error {
	m, err := mockGoogle(a.s)
	if err != nil {
		return err
	}
	m.SignInAs(GoogleProfile{
		Subject: uid,
		Name:    name,
		Picture: "https://example.com/" + uid + ".png",
		Email:   uid + "@example.com",
	})
	return nil
}

func (a *authSteps) googleDeniesTheNextLogin() error {
	m, err := mockGoogle(a.s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.next = nil
	m.mu.Unlock()
	return nil
}
