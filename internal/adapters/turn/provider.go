// Package turn hands out the ICE server list sent to clients before they offer.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 24 * time.Hour

type Options struct {
	// Static is returned to every client as is.
	Static []webrtc.ICEServer
	// URLs and Secret enable ephemeral TURN credentials.
	URLs   []string
	Secret string
	TTL    time.Duration
}

type grant struct {
	server  webrtc.ICEServer
	expires time.Time
}

// Provider implements core.TurnProvider. TURN credentials follow the TURN REST
// scheme: username "<expiry>:<cid>", password base64(HMAC-SHA1(secret, username)).
type Provider struct {
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	grants map[domain.ClientID]grant
}

var _ core.TurnProvider = (*Provider)(nil)

func NewProvider(opts Options) *Provider {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Provider{opts: opts, now: time.Now, grants: make(map[domain.ClientID]grant)}
}

// TurnServers returns the static list plus a TURN entry for cid. A credential
// is reused until half its lifetime passed; force mints a new one.
func (p *Provider) TurnServers(cid domain.ClientID, force bool) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(p.opts.Static)+1)
	out = append(out, p.opts.Static...)
	if len(p.opts.URLs) == 0 || p.opts.Secret == "" {
		return out
	}

	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.grants[cid]
	if force || !ok || now.After(g.expires.Add(-p.opts.TTL/2)) {
		g = p.mint(cid, now)
		p.grants[cid] = g
		p.prune(now)
		log.Debug().Str("module", "turn").Str("cid", string(cid)).Bool("force", force).Time("expires", g.expires).Msg("turn credential issued")
	}
	return append(out, g.server)
}

func (p *Provider) mint(cid domain.ClientID, now time.Time) grant {
	expires := now.Add(p.opts.TTL)
	username := fmt.Sprintf("%d:%s", expires.Unix(), cid)
	return grant{
		server: webrtc.ICEServer{
			URLs:       p.opts.URLs,
			Username:   username,
			Credential: Credential(p.opts.Secret, username),
		},
		expires: expires,
	}
}

// prune drops expired grants. Called with p.mu held.
func (p *Provider) prune(now time.Time) {
	for cid, g := range p.grants {
		if now.After(g.expires) {
			delete(p.grants, cid)
		}
	}
}

// Credential is the TURN REST password for username.
func Credential(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
