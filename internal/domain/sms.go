package domain

const (
	smsSingleFragmentLimit = 160
	smsMultiFragmentLength = 153
)

// FragmentCount returns the number of billable SMS parts for content of the given byte length.
func FragmentCount(length int) int {
	if length <= smsSingleFragmentLimit {
		return 1
	}
	return (length + smsMultiFragmentLength - 1) / smsMultiFragmentLength
}

// SMSFragmentCount counts fragments of rendered SMS content.
func SMSFragmentCount(content string) int {
	return FragmentCount(len(content))
}
