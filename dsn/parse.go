package dsn

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tdsgo/tds/internal/errs"
)

// Parse accepts either a `sqlserver://` URL (the go-mssqldb convention) or a
// flat `key=value;key=value` ADO-style string, and returns a fully
// validated Config. Keyword matching is case-insensitive per spec.md S6.
func Parse(connStr string) (*Config, error) {
	cfg := Defaults()

	var kv map[string]string
	var err error
	if strings.HasPrefix(strings.ToLower(connStr), "sqlserver://") {
		kv, err = parseURL(connStr, cfg)
	} else {
		kv, err = parseKeyValue(connStr)
	}
	if err != nil {
		return nil, err
	}

	if err := applyKeywords(cfg, kv); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseURL(connStr string, cfg *Config) (map[string]string, error) {
	// net/url rejects `\` in a host, so a `host\instance` server name is
	// cut out of the authority before the URL is parsed.
	const scheme = len("sqlserver://")
	rest := connStr[scheme:]
	authEnd := strings.IndexAny(rest, "/?#")
	if authEnd < 0 {
		authEnd = len(rest)
	}
	hostStart := strings.LastIndex(rest[:authEnd], "@") + 1
	if idx := strings.Index(rest[hostStart:authEnd], `\`); idx >= 0 {
		instStart := hostStart + idx
		instEnd := authEnd
		if c := strings.Index(rest[instStart:authEnd], ":"); c >= 0 {
			instEnd = instStart + c
		}
		cfg.InstanceName = rest[instStart+1 : instEnd]
		connStr = connStr[:scheme] + rest[:instStart] + rest[instEnd:]
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, errInvalid("malformed connection URL: %v", err)
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	host := u.Hostname()
	if idx := strings.Index(host, `\`); idx >= 0 {
		cfg.InstanceName = host[idx+1:]
		host = host[:idx]
	}
	cfg.ServerName = host
	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, errInvalid("invalid port %q", p)
		}
		cfg.PortNumber = uint16(port)
	}
	if len(u.Path) > 1 {
		cfg.DatabaseName = strings.TrimPrefix(u.Path, "/")
	}

	kv := make(map[string]string, len(u.Query()))
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			kv[strings.ToLower(k)] = vs[len(vs)-1]
		}
	}
	return kv, nil
}

// parseKeyValue parses the semicolon-delimited `key=value` form used by
// ODBC/ADO.NET-style connection strings: `server=host;user id=sa;...`.
func parseKeyValue(connStr string) (map[string]string, error) {
	kv := make(map[string]string)
	for _, part := range strings.Split(connStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, errInvalid("malformed keyword pair %q: missing '='", part)
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])
		kv[normalizeAlias(key)] = val
	}
	return kv, nil
}

// normalizeAlias folds ODBC/ADO.NET keyword spellings onto the canonical
// spec.md S6 keyword names.
func normalizeAlias(key string) string {
	switch key {
	case "server", "data source", "addr", "address", "network address":
		return "servername"
	case "database", "initial catalog":
		return "databasename"
	case "uid", "user id":
		return "user"
	case "pwd":
		return "password"
	case "port":
		return "portnumber"
	default:
		return key
	}
}

func applyKeywords(cfg *Config, kv map[string]string) error {
	for key, val := range kv {
		switch strings.ToLower(key) {
		case "servername":
			host := val
			if idx := strings.Index(host, `\`); idx >= 0 {
				cfg.InstanceName = host[idx+1:]
				host = host[:idx]
			}
			cfg.ServerName = host
		case "portnumber":
			port, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return errInvalid("portNumber: %v", err)
			}
			cfg.PortNumber = uint16(port)
		case "instancename":
			cfg.InstanceName = val
		case "databasename":
			cfg.DatabaseName = val
		case "user":
			cfg.User = val
		case "password":
			cfg.Password = val
		case "domain":
			cfg.Domain = val
		case "integratedsecurity":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("integratedSecurity: %v", err)
			}
			cfg.IntegratedSecurity = b
		case "authentication":
			cfg.Authentication = AuthenticationMode(val)
		case "authenticationscheme":
			cfg.AuthenticationScheme = val
		case "encrypt":
			lvl, err := parseEncryptionLevel(val)
			if err != nil {
				return err
			}
			cfg.Encrypt = lvl
		case "trustservercertificate":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("trustServerCertificate: %v", err)
			}
			cfg.TrustServerCertificate = b
		case "hostnameincertificate":
			cfg.HostNameInCertificate = val
		case "sslprotocol":
			cfg.SSLProtocolMin = val
		case "truststore":
			cfg.TrustStore = val
		case "truststorepassword":
			cfg.TrustStorePassword = val
		case "truststoretype":
			cfg.TrustStoreType = TrustStoreType(strings.ToUpper(val))
		case "watchtruststore":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("watchTrustStore: %v", err)
			}
			cfg.WatchTrustStore = b
		case "columnencryptionsetting":
			cfg.ColumnEncryptionSetting = ColumnEncryptionSetting(val)
		case "enclaveattestationurl":
			cfg.EnclaveAttestationURL = val
		case "enclaveattestationprotocol":
			cfg.EnclaveAttestationProtocol = val
		case "statementpoolingcachesize":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return errInvalid("statementPoolingCacheSize: %v", err)
			}
			cfg.StatementPoolingCacheSize = uint32(n)
		case "disablestatementpooling":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("disableStatementPooling: %v", err)
			}
			cfg.DisableStatementPooling = b
		case "cancelquerytimeout":
			d, err := parseSeconds(val)
			if err != nil {
				return errInvalid("cancelQueryTimeout: %v", err)
			}
			cfg.CancelQueryTimeout = d
		case "querytimeout":
			d, err := parseSeconds(val)
			if err != nil {
				return errInvalid("queryTimeout: %v", err)
			}
			cfg.QueryTimeout = d
		case "logintimeout":
			d, err := parseSeconds(val)
			if err != nil {
				return errInvalid("loginTimeout: %v", err)
			}
			cfg.LoginTimeout = d
		case "connectretrycount":
			n, err := strconv.Atoi(val)
			if err != nil {
				return errInvalid("connectRetryCount: %v", err)
			}
			cfg.ConnectRetryCount = n
		case "connectretryinterval":
			n, err := strconv.Atoi(val)
			if err != nil {
				return errInvalid("connectRetryInterval: %v", err)
			}
			cfg.ConnectRetryInterval = time.Duration(n) * time.Second
		case "multisubnetfailover":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("multiSubnetFailover: %v", err)
			}
			cfg.MultiSubnetFailover = b
		case "transparentnetworkipresolution":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("transparentNetworkIPResolution: %v", err)
			}
			cfg.TransparentNetworkIPResolution = b
		case "usebulkcopyforbatchinsert":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("useBulkCopyForBatchInsert: %v", err)
			}
			cfg.UseBulkCopyForBatchInsert = b
		case "fips":
			b, err := parseBool(val)
			if err != nil {
				return errInvalid("fips: %v", err)
			}
			cfg.FIPS = b
		case "trustmanagerclass":
			cfg.TrustManagerClass = val
		case "trustmanagerconstructorarg":
			cfg.TrustManagerConstructorArg = val
		default:
			return errInvalid("unrecognized keyword %q", key)
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0", "":
		return false, nil
	default:
		return false, errs.Newf(errs.KindConfigInvalid, "dsn.parseBool", "not a boolean: %q", s)
	}
}

func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parseEncryptionLevel(s string) (EncryptionLevel, error) {
	switch strings.ToLower(s) {
	case "false", "no", "0", "off":
		return EncryptOff, nil
	case "true", "yes", "1", "on":
		return EncryptOn, nil
	case "strict", "required", "req":
		return EncryptRequired, nil
	case "notsupported", "not_supported":
		return EncryptNotSupported, nil
	default:
		return 0, errInvalid("encrypt: unrecognized value %q", s)
	}
}

// SplitHostInstance applies the same host\instance splitting rule Parse
// uses, for callers that receive a bare server name outside a full DSN
// (e.g. a routing ENVCHANGE's new server name).
func SplitHostInstance(hostport string) (host, instance string) {
	if idx := strings.Index(hostport, `\`); idx >= 0 {
		return hostport[:idx], hostport[idx+1:]
	}
	return hostport, ""
}
