package request_models

type StripeSubscribeRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

type WalletPaymentRequest struct {
	PlanID  string `json:"planId" binding:"required"`
	Network string `json:"network" binding:"required"`
	Months  int    `json:"months" binding:"required,min=1,max=12"`
}

type VerifyTransactionRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
	TxHash    string `json:"txHash" binding:"required"`
}

type RenewRequest struct {
	PlanID string `json:"planId" binding:"required"`
	Months int    `json:"months" binding:"required,min=1,max=12"`
	// Empty network means renew by card checkout.
	Network string `json:"network"`
}
