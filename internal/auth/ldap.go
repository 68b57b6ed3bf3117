package auth

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"subzone/internal/config"
	"subzone/internal/model"
)

type LDAPResult struct {
	Email  string
	Name   string
	Groups []string
}

type LDAPClient struct {
	cfg config.LDAPConfig
}

func NewLDAPClient(cfg config.LDAPConfig) *LDAPClient {
	return &LDAPClient{cfg: cfg}
}

// Authenticate binds with the service account, looks the user up by email
// and then binds as that user to check the password.
func (lc *LDAPClient) Authenticate(email, password string) (*LDAPResult, error) {
	if password == "" {
		return nil, fmt.Errorf("ldap: empty password")
	}

	conn, err := lc.connect()
	if err != nil {
		return nil, fmt.Errorf("ldap connect: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(lc.cfg.BindDN, lc.cfg.BindPassword); err != nil {
		return nil, fmt.Errorf("ldap service bind: %w", err)
	}

	searchReq := ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 0, 30, false,
		fmt.Sprintf(lc.cfg.UserFilter, ldap.EscapeFilter(email)),
		[]string{"dn", lc.cfg.EmailAttr, lc.cfg.NameAttr, "memberOf"},
		nil,
	)

	result, err := conn.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("ldap search: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("user not found or ambiguous: %d results", len(result.Entries))
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("ldap user bind: %w", err)
	}

	groups := entry.GetAttributeValues("memberOf")
	if len(groups) == 0 {
		groups = lc.searchGroups(conn, entry.DN, email)
	}

	res := &LDAPResult{
		Email:  entry.GetAttributeValue(lc.cfg.EmailAttr),
		Name:   entry.GetAttributeValue(lc.cfg.NameAttr),
		Groups: groups,
	}
	if res.Email == "" {
		res.Email = email
	}
	return res, nil
}

// searchGroups finds groups listing the user when the directory has no
// memberOf overlay. In the filter %s is the user DN and %u the email.
func (lc *LDAPClient) searchGroups(conn *ldap.Conn, userDN, email string) []string {
	filterTmpl := lc.cfg.GroupFilter
	if filterTmpl == "" {
		filterTmpl = "(|(member=%s)(uniqueMember=%s))"
	}
	filter := strings.ReplaceAll(filterTmpl, "%s", ldap.EscapeFilter(userDN))
	filter = strings.ReplaceAll(filter, "%u", ldap.EscapeFilter(email))

	groupSearch := ldap.NewSearchRequest(
		lc.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"dn"},
		nil,
	)
	var groups []string
	if groupResult, err := conn.Search(groupSearch); err == nil {
		for _, ge := range groupResult.Entries {
			groups = append(groups, ge.DN)
		}
	}
	return groups
}

// ResolveRole maps LDAP groups to account roles using group_mapping.
// Returns ("", false) if the user is not in any mapped group.
func (lc *LDAPClient) ResolveRole(groups []string) (string, bool) {
	for _, role := range []string{model.RoleAdmin, model.RoleUser} {
		group, ok := lc.cfg.GroupMapping[role]
		if !ok {
			continue
		}
		for _, g := range groups {
			if strings.EqualFold(g, group) {
				return role, true
			}
		}
	}
	return "", false
}

func (lc *LDAPClient) connect() (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: lc.cfg.SkipVerify}

	if strings.HasPrefix(lc.cfg.URL, "ldaps://") {
		return ldap.DialURL(lc.cfg.URL, ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(lc.cfg.URL)
	if err != nil {
		return nil, err
	}

	if lc.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}

	return conn, nil
}
