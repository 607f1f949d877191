package config

import (
	"errors"
	"flag"
	"net"
	"regexp"
	"strconv"
)

type Branding struct {
	CompanyName  string
	PrimaryColor string
	AccentColor  string
	LogoPath     string
}

type Config struct {
	Addr           string
	DBUrl          string
	TokenSecret    string
	UploadDir      string
	UploadBaseURL  string
	GCSBucket      string
	WebhookURL     string
	ProtocolPrefix string
	Brand          Branding
	Debug          bool
}

func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", "0.0.0.0", "listen host name (default 0.0.0.0)")
	var port uint
	flag.UintVar(&port, "port", 80, "listen port number (default 80)")
	flag.StringVar(&cfg.DBUrl, "db-url", "vistoria.sqlite", "path to SQLite3 DB file (default vistoria.sqlite)")
	flag.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for bearer token verification")
	flag.StringVar(&cfg.UploadDir, "upload-dir", "uploads", "directory for uploaded media (disk store)")
	flag.StringVar(&cfg.UploadBaseURL, "upload-base-url", "/uploads", "public base URL for uploaded media")
	flag.StringVar(&cfg.GCSBucket, "gcs-bucket", "", "GCS bucket for uploaded media (overrides disk store)")
	flag.StringVar(&cfg.WebhookURL, "notify-webhook-url", "", "webhook URL notified on finalized submissions")
	flag.StringVar(&cfg.ProtocolPrefix, "protocol-prefix", "VST", "prefix for finalization protocol codes")
	flag.StringVar(&cfg.Brand.CompanyName, "brand-name", "", "company name printed on reports")
	flag.StringVar(&cfg.Brand.PrimaryColor, "brand-primary", "", "primary brand color as #RRGGBB")
	flag.StringVar(&cfg.Brand.AccentColor, "brand-accent", "", "accent brand color as #RRGGBB")
	flag.StringVar(&cfg.Brand.LogoPath, "brand-logo", "", "path to logo image for report headers")
	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
