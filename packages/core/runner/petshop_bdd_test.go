package runner

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

type petshopBDDContext struct {
	t      *testing.T
	shop   *petshop
	srv    *httptest.Server
	suite  string
	result *SuiteResult
}

func (c *petshopBDDContext) aPetshopMock() error {
	c.shop, c.srv = newPetshop(c.t)
	return nil
}

func (c *petshopBDDContext) theMockAnswersWithStatus(method string, status int) error {
	c.shop.set(func(p *petshop) {
		if method == "POST" {
			p.createStatus = status
		} else {
			p.getStatus = status
		}
	})
	return nil
}

func (c *petshopBDDContext) theMockReturnsPhotoUrls(urls string) error {
	c.shop.set(func(p *petshop) { p.photoUrls = strings.Split(urls, ",") })
	return nil
}

func (c *petshopBDDContext) theSuite(doc *godog.DocString) error {
	c.suite = doc.Content
	return nil
}

func (c *petshopBDDContext) iRunTheSuite() error {
	e := New(nil, WithGlobals(map[string]any{"BASE": c.srv.URL}))
	defer e.Close()

	path := writeSuite(c.t, "feature.yaml", c.suite)
	res, err := e.RunFile(context.Background(), path)
	if err != nil {
		return err
	}
	c.result = res
	return nil
}

func (c *petshopBDDContext) caseResult(name string) (*CaseResult, error) {
	if c.result == nil {
		return nil, fmt.Errorf("the suite has not run")
	}
	for _, r := range c.result.Cases {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("case %q was not reported", name)
}

func (c *petshopBDDContext) caseFailsWith(name, kind string) error {
	r, err := c.caseResult(name)
	if err != nil {
		return err
	}
	if !r.Failed() || r.Kind != kind {
		return fmt.Errorf("expected %q to fail with %s, got %s (%s): %v", name, kind, r.Status, r.Kind, r.Err)
	}
	return nil
}

func (c *petshopBDDContext) casePasses(name string) error {
	r, err := c.caseResult(name)
	if err != nil {
		return err
	}
	if !r.Passed() {
		return fmt.Errorf("expected %q to pass, got %s: %v", name, r.Status, r.Err)
	}
	return nil
}

func (c *petshopBDDContext) theFailureMessageContains(doc *godog.DocString) error {
	want := strings.TrimSpace(doc.Content)
	for _, r := range c.result.Cases {
		if r.Err != nil && strings.Contains(r.Err.Error(), want) {
			return nil
		}
	}
	return fmt.Errorf("no failure message contains %q", want)
}

func (c *petshopBDDContext) theMockReceivedRequests(n int, endpoint string) error {
	if got := c.shop.Hits(endpoint); got != n {
		return fmt.Errorf("expected %d %s requests, got %d", n, endpoint, got)
	}
	return nil
}

func TestPetshopFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			testCtx := &petshopBDDContext{t: t}

			ctx.Step(`^a petshop mock$`, testCtx.aPetshopMock)
			ctx.Step(`^the mock answers (GET|POST) /pet with status (\d+)$`, testCtx.theMockAnswersWithStatus)
			ctx.Step(`^the mock returns photo urls "([^"]*)"$`, testCtx.theMockReturnsPhotoUrls)
			ctx.Step(`^the suite:$`, testCtx.theSuite)
			ctx.Step(`^I run the suite$`, testCtx.iRunTheSuite)
			ctx.Step(`^case "([^"]*)" fails with (\w+)$`, testCtx.caseFailsWith)
			ctx.Step(`^case "([^"]*)" passes$`, testCtx.casePasses)
			ctx.Step(`^the failure message contains:$`, testCtx.theFailureMessageContains)
			ctx.Step(`^the mock received (\d+) "([^"]*)" requests?$`, testCtx.theMockReceivedRequests)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
