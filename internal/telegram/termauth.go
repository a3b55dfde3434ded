package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// TermAuth запрашивает данные для входа из терминала. Телефон можно задать
// заранее через конфигурацию.
type TermAuth struct {
	PhoneNumber string
}

func (a TermAuth) Phone(_ context.Context) (string, error) {
	if a.PhoneNumber != "" {
		return a.PhoneNumber, nil
	}
	fmt.Print("Введите номер телефона (например, +79123456789): ")
	var phone string
	_, err := fmt.Scanln(&phone)
	return phone, err
}

func (TermAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Введите пароль: ")
	var password string
	_, err := fmt.Scanln(&password)
	return password, err
}

func (TermAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Введите код из Telegram: ")
	var code string
	_, err := fmt.Scanln(&code)
	return code, err
}

// AcceptTermsOfService требуется для реализации интерфейса UserAuthenticator.
func (TermAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

// SignUp: новых пользователей не регистрируем.
func (TermAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported")
}
