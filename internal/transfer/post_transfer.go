package transfer

type PostCreation struct {
	Caption          string
	Title            string
	ScheduledTime    string
	SelectedAccounts string
}
