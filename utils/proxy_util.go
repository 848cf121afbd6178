package utils

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"
)

func ToPWProxy(u string) *playwright.Proxy {
	if u == "" {
		return nil
	}

	ans := playwright.Proxy{
		Server: u,
	}

	if parsed, err := url.Parse(u); err == nil && parsed.User != nil {
		ans.Server = parsed.Scheme + "://" + parsed.Host
		ans.Username = playwright.String(parsed.User.Username())

		if pass, ok := parsed.User.Password(); ok {
			ans.Password = playwright.String(pass)
		}
	}

	return &ans
}

// ToURLProxy parses a proxy address. A bare host:port is treated as http.
func ToURLProxy(proxyURL string) (*url.URL, error) {
	if proxyURL == "" {
		return nil, nil
	}

	if !strings.Contains(proxyURL, "://") {
		proxyURL = "http://" + proxyURL
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", proxyURL, err)
	}

	return u, nil
}

// RoundRobin hands out proxies in turn. The zero value has no proxies.
type RoundRobin struct {
	urls []string
	next atomic.Uint32
}

func NewRoundRobin(urls []string) *RoundRobin {
	return &RoundRobin{urls: urls}
}

func (r *RoundRobin) Len() int {
	if r == nil {
		return 0
	}

	return len(r.urls)
}

// Next returns the next proxy or an empty string when none are configured.
func (r *RoundRobin) Next() string {
	if r.Len() == 0 {
		return ""
	}

	idx := r.next.Add(1) - 1

	return r.urls[idx%uint32(len(r.urls))]
}

// HTTPProxy is an http.Transport Proxy func. Without configured proxies it
// falls back to the environment (HTTP_PROXY, HTTPS_PROXY, NO_PROXY).
func (r *RoundRobin) HTTPProxy(req *http.Request) (*url.URL, error) {
	if r.Len() == 0 {
		return http.ProxyFromEnvironment(req)
	}

	return ToURLProxy(r.Next())
}

// GetProxiesFromTxtFile reads one proxy per line. Blank lines and lines
// starting with # are ignored.
func GetProxiesFromTxtFile(txtFilePath string) ([]string, error) {
	file, err := os.Open(txtFilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var proxies []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		proxy := strings.TrimSpace(scanner.Text())
		if proxy == "" || strings.HasPrefix(proxy, "#") {
			continue
		}

		proxies = append(proxies, proxy)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return proxies, nil
}
