package models

// CredentialSet — атомарная единица {access, refresh, user}.
// Все три поля записываются и очищаются только вместе.
type CredentialSet struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// Complete сообщает, заполнены ли все три части набора.
// Пользователь без id частью набора не считается.
func (c *CredentialSet) Complete() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != "" && c.User != nil && c.User.ID != ""
}

// Clone возвращает независимую копию набора.
func (c *CredentialSet) Clone() *CredentialSet {
	if c == nil {
		return nil
	}

	return &CredentialSet{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		User:         c.User.Clone(),
	}
}
