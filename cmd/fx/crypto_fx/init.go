package crypto_fx

import (
	"os"
	"time"

	"go.uber.org/fx"

	"coinscope/internal/infra"
	"coinscope/internal/services"
)

var Module = fx.Provide(
	provideCommerceClient,
	provideChainVerifier,
	provideCryptoConfig,
	services.NewCryptoService,
)

func provideCommerceClient() *infra.CommerceClient {
	return infra.NewCommerceClient(infra.CommerceConfig{
		APIKey:        os.Getenv("COMMERCE_API_KEY"),
		WebhookSecret: os.Getenv("COMMERCE_WEBHOOK_SECRET"),
		BaseURL:       os.Getenv("COMMERCE_BASE_URL"),
		RedirectURL:   os.Getenv("CHECKOUT_SUCCESS_URL"),
		CancelURL:     os.Getenv("CHECKOUT_CANCEL_URL"),
	})
}

func provideChainVerifier() services.ChainVerifier {
	return infra.NewEthRPCClient(infra.ChainConfig{
		RPCURL: os.Getenv("CHAIN_RPC_URL"),
		Networks: map[string]infra.TokenConfig{
			"ethereum": {},
			"usdc":     {Contract: os.Getenv("USDC_CONTRACT"), Decimals: 6},
		},
	})
}

func provideCryptoConfig() services.CryptoConfig {
	return services.CryptoConfig{
		DepositAddresses: map[string]string{
			"ethereum": os.Getenv("DEPOSIT_ADDRESS_ETH"),
			"usdc":     os.Getenv("DEPOSIT_ADDRESS_ETH"),
		},
		QuoteTTL:      30 * time.Minute,
		AmountEpsilon: 0.01,
	}
}
