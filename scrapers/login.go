package scrapers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/result"
)

// Login signs in through the home page's start card.
func (s *VRSScraper) Login(ctx context.Context) error {
	if !s.Config.HasCredentials() {
		return stageErr(MissingCredentials,
			fmt.Errorf("%s and %s must be set", config.EnvUsername, config.EnvPassword))
	}

	home := s.Config.HomeURL()
	s.Logger.Info("Navigating to login page", slog.String("url", home))
	if err := s.Session.Navigate(ctx, home, browser.WaitLoad); err != nil {
		return stageErr(NavigationFailed, err)
	}

	if !s.clickCardAction(ctx) {
		return stageErr(LoginCardNotClickable, errors.New("failed to click login card"))
	}

	loc, t := s.Locators, s.Config.Timings
	err := result.Do(func() error {
		if err := s.Session.WaitVisible(ctx, loc.Email, t.NavigationWait); err != nil {
			return err
		}
		if err := s.Session.Type(ctx, loc.Email, s.Config.Username); err != nil {
			return err
		}
		if err := s.Session.Type(ctx, loc.Password, s.Config.Password); err != nil {
			return err
		}
		if err := s.Session.ClickNavigate(ctx, loc.Submit, browser.ClickNative, t.NavigationWait); err != nil {
			return err
		}
		return s.Session.WaitNetworkIdle(ctx, t.LoginIdle)
	})
	if err != nil {
		return stageErr(LoginFailed, err)
	}

	s.Logger.Info("Login complete")
	return nil
}

// clickCardAction activates the start card. The card either navigates or
// reveals the form in place, so a native click that does not navigate is
// fine; an in-page click is the fallback when the native one fails.
func (s *VRSScraper) clickCardAction(ctx context.Context) bool {
	loc, t := s.Locators, s.Config.Timings

	_ = s.Session.WaitVisible(ctx, loc.StartCard, t.NavigationWait)

	err := s.Session.ClickNavigate(ctx, loc.StartCard, browser.ClickNative, t.NavigationWait)
	if err == nil {
		return true
	}
	s.Logger.Debug("Native click on start card failed, clicking in page", slog.Any("error", err))

	clicked, err := s.Session.ClickDOM(ctx, loc.StartCard)
	return err == nil && clicked
}
