package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	envPrefix = "BO_"

	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 60 * time.Second
	defaultShopifyAPIVersion   = "2024-10"
	defaultMetafieldNamespace  = "custom"
	defaultShopifyRPS          = 2.0
	defaultShopifyBurst        = 4
	defaultClientTimeout       = 15 * time.Second
	defaultFedExBaseURL        = "https://apis.fedex.com"
	defaultFlexportBaseURL     = "https://logistics-api.flexport.com"
	defaultInvoicePrefix       = "BRC"
	defaultFinancialYearStart  = 4
	defaultCountryOfOrigin     = "IN"
	defaultBenchmarkCountry    = "USA"
	defaultCallTimeout         = 10 * time.Second
	defaultExpandConcurrency   = 8
	defaultSecurityEnvironment = "local"
	defaultIdempotencyTTL      = 24 * time.Hour
)

var (
	defaultCarriers   = []string{"FedEx", "DHL", "Aramex"}
	defaultStaffRoles = []string{"staff", "admin"}
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Shopify     ShopifyConfig
	FedEx       FedExConfig
	Flexport    FlexportConfig
	Invoice     InvoiceConfig
	Rates       RatesConfig
	Core        CoreConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings used for staff authentication.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the bucket rendered documents and labels are archived to.
// An empty bucket disables archiving.
type StorageConfig struct {
	DocumentsBucket string
}

// PubSubConfig configures fulfillment event publishing. An empty topic disables it.
type PubSubConfig struct {
	ProjectID        string
	FulfillmentTopic string
	// OrderedDelivery publishes with the order id as ordering key.
	OrderedDelivery bool
}

// ShopifyConfig configures the Admin GraphQL client.
type ShopifyConfig struct {
	ShopDomain         string
	AccessToken        string
	APIVersion         string
	MetafieldNamespace string
	RequestsPerSecond  float64
	Burst              int
	Timeout            time.Duration
}

// FedExConfig configures label creation. Labels are disabled without a client id.
type FedExConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	AccountNumber string
	Timeout       time.Duration
	Shipper       ShipperConfig
}

// ShipperConfig is the sender printed on every label.
type ShipperConfig struct {
	Name        string
	Company     string
	Phone       string
	Street      string
	City        string
	StateCode   string
	PostalCode  string
	CountryCode string
}

// FlexportConfig configures fulfillment forwarding. Forwarding is disabled without a token.
type FlexportConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// InvoiceConfig controls customs invoice numbering and defaults.
type InvoiceConfig struct {
	Prefix                  string
	FinancialYearStartMonth int
	CountryOfManufacture    string
	// MaxSequence caps each financial year's series; zero leaves it open.
	MaxSequence int
}

// RatesConfig lists the carriers compared when quoting.
type RatesConfig struct {
	Carriers         []string
	BenchmarkCountry string
}

// CoreConfig bounds provider calls made while expanding line items.
type CoreConfig struct {
	CallTimeout time.Duration
	// ExpandConcurrency caps the line items of one order expanded at once; zero is unbounded.
	ExpandConcurrency int
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment string
	StaffRoles  []string
	// RoleClaim names the custom claim holding staff roles.
	RoleClaim string
	// CheckRevoked makes every request consult Firebase for revoked sessions.
	CheckRevoked bool
}

// IdempotencyConfig controls replay of mutating requests sent with an Idempotency-Key.
type IdempotencyConfig struct {
	Collection string
	TTL        time.Duration
}

// Enabled reports whether label creation is configured.
func (c FedExConfig) Enabled() bool { return strings.TrimSpace(c.ClientID) != "" }

// Enabled reports whether fulfillment forwarding is configured.
func (c FlexportConfig) Enabled() bool { return strings.TrimSpace(c.APIToken) != "" }

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	values, err := options.environment()
	if err != nil {
		return Config{}, err
	}
	env := envVars(values)

	cfg := Config{
		Server: ServerConfig{
			Port:           env.str("SERVER_PORT", defaultPort),
			ReadTimeout:    env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    env.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: env.duration("SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			DocumentsBucket: env.str("STORAGE_DOCUMENTS_BUCKET", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.str("PUBSUB_PROJECT_ID", ""),
			FulfillmentTopic: env.str("PUBSUB_FULFILLMENT_TOPIC", ""),
			OrderedDelivery:  env.boolean("PUBSUB_ORDERED_DELIVERY", false),
		},
		Shopify: ShopifyConfig{
			ShopDomain:         env.str("SHOPIFY_SHOP_DOMAIN", ""),
			AccessToken:        env.str("SHOPIFY_ACCESS_TOKEN", ""),
			APIVersion:         env.str("SHOPIFY_API_VERSION", defaultShopifyAPIVersion),
			MetafieldNamespace: env.str("SHOPIFY_METAFIELD_NAMESPACE", defaultMetafieldNamespace),
			RequestsPerSecond:  env.float("SHOPIFY_REQUESTS_PER_SECOND", defaultShopifyRPS),
			Burst:              env.integer("SHOPIFY_BURST", defaultShopifyBurst),
			Timeout:            env.duration("SHOPIFY_TIMEOUT", defaultClientTimeout),
		},
		FedEx: FedExConfig{
			BaseURL:       env.str("FEDEX_BASE_URL", defaultFedExBaseURL),
			ClientID:      env.str("FEDEX_CLIENT_ID", ""),
			ClientSecret:  env.str("FEDEX_CLIENT_SECRET", ""),
			AccountNumber: env.str("FEDEX_ACCOUNT_NUMBER", ""),
			Timeout:       env.duration("FEDEX_TIMEOUT", defaultClientTimeout),
			Shipper: ShipperConfig{
				Name:        env.str("FEDEX_SHIPPER_NAME", ""),
				Company:     env.str("FEDEX_SHIPPER_COMPANY", ""),
				Phone:       env.str("FEDEX_SHIPPER_PHONE", ""),
				Street:      env.str("FEDEX_SHIPPER_STREET", ""),
				City:        env.str("FEDEX_SHIPPER_CITY", ""),
				StateCode:   env.str("FEDEX_SHIPPER_STATE_CODE", ""),
				PostalCode:  env.str("FEDEX_SHIPPER_POSTAL_CODE", ""),
				CountryCode: strings.ToUpper(env.str("FEDEX_SHIPPER_COUNTRY_CODE", defaultCountryOfOrigin)),
			},
		},
		Flexport: FlexportConfig{
			BaseURL:  env.str("FLEXPORT_BASE_URL", defaultFlexportBaseURL),
			APIToken: env.str("FLEXPORT_API_TOKEN", ""),
			Timeout:  env.duration("FLEXPORT_TIMEOUT", defaultClientTimeout),
		},
		Invoice: InvoiceConfig{
			Prefix:                  strings.ToUpper(env.str("INVOICE_PREFIX", defaultInvoicePrefix)),
			FinancialYearStartMonth: env.integer("INVOICE_FINANCIAL_YEAR_START_MONTH", defaultFinancialYearStart),
			CountryOfManufacture:    strings.ToUpper(env.str("INVOICE_COUNTRY_OF_MANUFACTURE", defaultCountryOfOrigin)),
			MaxSequence:             env.integer("INVOICE_MAX_SEQUENCE", 0),
		},
		Rates: RatesConfig{
			Carriers:         env.csv("RATES_CARRIERS", defaultCarriers),
			BenchmarkCountry: strings.ToUpper(env.str("RATES_BENCHMARK_COUNTRY", defaultBenchmarkCountry)),
		},
		Core: CoreConfig{
			CallTimeout:       env.duration("CORE_CALL_TIMEOUT", defaultCallTimeout),
			ExpandConcurrency: env.integer("CORE_EXPAND_CONCURRENCY", defaultExpandConcurrency),
		},
		Security: SecurityConfig{
			Environment:  strings.ToLower(env.str("SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			StaffRoles:   env.csv("SECURITY_STAFF_ROLES", defaultStaffRoles),
			RoleClaim:    env.str("SECURITY_ROLE_CLAIM", "role"),
			CheckRevoked: env.boolean("SECURITY_CHECK_REVOKED", false),
		},
		Idempotency: IdempotencyConfig{
			Collection: env.str("IDEMPOTENCY_COLLECTION", "idempotencyKeys"),
			TTL:        env.duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	if err := resolveSecrets(ctx, &cfg, options.secret); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if err := checkRequiredSecrets(&cfg, options.requiredSecrets, options.panicOnMissingSecrets); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

func validateConfig(cfg Config) error {
	var invalid []string
	require := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Server.RequestTimeout > 0, "Server.RequestTimeout")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(strings.TrimSpace(cfg.Shopify.ShopDomain) != "", "Shopify.ShopDomain")
	require(strings.TrimSpace(cfg.Shopify.APIVersion) != "", "Shopify.APIVersion")
	require(strings.TrimSpace(cfg.Shopify.MetafieldNamespace) != "", "Shopify.MetafieldNamespace")
	require(cfg.Shopify.RequestsPerSecond > 0, "Shopify.RequestsPerSecond")
	require(cfg.Invoice.Prefix != "", "Invoice.Prefix")
	require(cfg.Invoice.FinancialYearStartMonth >= 1 && cfg.Invoice.FinancialYearStartMonth <= 12, "Invoice.FinancialYearStartMonth")
	require(cfg.Invoice.MaxSequence >= 0, "Invoice.MaxSequence")
	require(len(cfg.Rates.Carriers) > 0, "Rates.Carriers")
	require(cfg.Rates.BenchmarkCountry != "", "Rates.BenchmarkCountry")
	require(cfg.Core.CallTimeout > 0, "Core.CallTimeout")
	require(cfg.Core.ExpandConcurrency >= 0, "Core.ExpandConcurrency")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	if cfg.FedEx.Enabled() {
		require(cfg.FedEx.AccountNumber != "", "FedEx.AccountNumber")
		require(cfg.FedEx.Shipper.CountryCode != "", "FedEx.Shipper.CountryCode")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
