package kerberos

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-krb5/krb5/client"
	"github.com/go-krb5/krb5/config"
	"github.com/go-krb5/krb5/credentials"
	"github.com/go-krb5/krb5/gssapi"
	"github.com/go-krb5/krb5/spnego"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DefaultKrb5Conf is used when neither the caller nor KRB5_CONFIG name a file.
const DefaultKrb5Conf = "/etc/krb5.conf"

// ErrNoBinding is returned when the driver authenticates outside a credential scope.
var ErrNoBinding = errors.New("no credential cache bound")

// GSSConfig holds what the provider needs to build tokens.
type GSSConfig struct {
	// Krb5ConfPath is the krb5.conf location. Empty means KRB5_CONFIG, then DefaultKrb5Conf.
	Krb5ConfPath string
	// EnvVar names the variable holding the ccache location (usually KRB5CCNAME).
	EnvVar string
}

// GSSProvider implements pq.GSS using the credential cache published in the
// process environment at the moment the connection authenticates.
type GSSProvider struct {
	conf   *config.Config
	envVar string
	client *client.Client
}

var (
	_ pq.GSS     = (*GSSProvider)(nil)
	_ pgconn.GSS = (*GSSProvider)(nil)
)

var registerOnce sync.Once

// Register loads krb5.conf and installs the provider as the GSS implementation
// of both lib/pq and pgx. Later calls are no-ops.
func Register(cfg GSSConfig) error {
	conf, err := loadConfig(cfg.Krb5ConfPath)
	if err != nil {
		return err
	}
	registerOnce.Do(func() {
		newGSS := NewGSSFunc(conf, cfg.EnvVar)
		pq.RegisterGSSProvider(newGSS)
		pgconn.RegisterGSSProvider(func() (pgconn.GSS, error) {
			g, err := newGSS()
			if err != nil {
				return nil, err
			}
			return g.(*GSSProvider), nil
		})
	})
	return nil
}

// NewGSSFunc returns a constructor that lib/pq calls once per authenticating connection.
func NewGSSFunc(conf *config.Config, envVar string) pq.NewGSSFunc {
	if envVar == "" {
		envVar = "KRB5CCNAME"
	}
	return func() (pq.GSS, error) {
		return &GSSProvider{conf: conf, envVar: envVar}, nil
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("KRB5_CONFIG")
		if path == "" {
			path = DefaultKrb5Conf
		}
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load krb5.conf from %s: %w", path, err)
	}
	return conf, nil
}

// CCachePath extracts a file path from a ccache name such as FILE:/tmp/krb5cc_1.
func CCachePath(name string) (string, error) {
	if name == "" {
		return "", ErrNoBinding
	}
	kind, path, found := strings.Cut(name, ":")
	if !found {
		return name, nil
	}
	if kind != "FILE" {
		return "", fmt.Errorf("unsupported ccache type %q", kind)
	}
	if path == "" {
		return "", ErrNoBinding
	}
	return path, nil
}

func (p *GSSProvider) login() error {
	if p.client != nil {
		return nil
	}
	path, err := CCachePath(os.Getenv(p.envVar))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", p.envVar, err)
	}
	cc, err := credentials.LoadCCache(path)
	if err != nil {
		return fmt.Errorf("load ccache from %s: %w", path, err)
	}
	cl, err := client.NewFromCCache(cc, p.conf, client.DisablePAFXFAST(true))
	if err != nil {
		return fmt.Errorf("create client from ccache: %w", err)
	}
	p.client = cl
	return nil
}

// GetInitToken builds the first token for service/host.
func (p *GSSProvider) GetInitToken(host string, service string) ([]byte, error) {
	return p.GetInitTokenFromSpn(service + "/" + host)
}

// GetInitTokenFromSpn builds a KRB5 AP-REQ wrapped in a GSS-API token.
func (p *GSSProvider) GetInitTokenFromSpn(spn string) ([]byte, error) {
	if _, _, ok := strings.Cut(spn, "/"); !ok {
		return nil, fmt.Errorf("invalid service principal %q", spn)
	}
	if err := p.login(); err != nil {
		return nil, err
	}

	tkt, sessionKey, err := p.client.GetServiceTicket(spn)
	if err != nil {
		return nil, fmt.Errorf("get service ticket for %s: %w", spn, err)
	}

	token, err := spnego.NewKRB5TokenAPREQ(p.client, tkt, sessionKey,
		[]int{gssapi.ContextFlagInteg, gssapi.ContextFlagConf}, []int{})
	if err != nil {
		return nil, fmt.Errorf("build AP-REQ: %w", err)
	}
	b, err := token.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal AP-REQ: %w", err)
	}
	return b, nil
}

// GetInitTokenFromSPN is the pgx spelling of GetInitTokenFromSpn.
func (p *GSSProvider) GetInitTokenFromSPN(spn string) ([]byte, error) {
	return p.GetInitTokenFromSpn(spn)
}

// Continue accepts the server's reply. Only an AP-REP completes the exchange.
func (p *GSSProvider) Continue(inToken []byte) (bool, []byte, error) {
	var t spnego.KRB5Token
	if err := t.Unmarshal(inToken); err != nil {
		return true, nil, fmt.Errorf("unmarshal server token: %w", err)
	}
	if t.IsKRBError() {
		return true, nil, fmt.Errorf("server rejected credentials: %s", t.KRBError.Error())
	}
	if !t.IsAPRep() {
		return true, nil, errors.New("server replied without an AP-REP")
	}
	return true, nil, nil
}
