package session

// Texts of the system messages participants see during a session.
const (
	introFirst = "Minimum 10 messages are required, so do not rush to make a deal. " +
		"Ask about your partner's preferences, explain your reasons and write complete sentences. " +
		"Short or meaningless messages are not paid. It is now your turn: chat using the input box below."
	introSecond = "Minimum 10 messages are required, so do not rush to make a deal. " +
		"Ask about your partner's preferences, explain your reasons and write complete sentences. " +
		"Short or meaningless messages are not paid. When it is your turn, chat using the input box below."

	noticeDealControls = "If you have agreed on a deal you can submit it from the left on your turn. " +
		"Otherwise keep chatting, or walk away if you cannot reach an agreement."

	noticeDealSubmitted = "Thanks for entering the deal. Please wait for your partner to respond."
	noticeDealReceived  = "Your partner has entered their deal. Please accept it, reject it or walk away."

	noticeRejected        = "You rejected the deal. Please keep chatting, agree on the details and submit again."
	noticePartnerRejected = "Your partner rejected the deal. Please keep chatting, agree on the details and submit again."

	noticeAccepted        = "Thanks for accepting the deal. Please wait while your partner answers a few final questions."
	noticePartnerAccepted = "Your partner accepted your deal. Please answer a few final questions on the left."

	noticeWalkedAway        = "You walked away without an agreement. Please wait while your partner answers a few final questions."
	noticePartnerWalkedAway = "Your partner walked away since you could not agree. Please answer a few final questions on the left."

	noticeSurveyDone        = "Thanks for answering the questions. Please wait for your partner to finish."
	noticePartnerSurveyDone = "Your partner has answered their questions. Please answer yours on the left."

	noticeFinished    = "Thanks for taking part in our study. Please click the button below to finish."
	noticePartnerLeft = "Your partner unexpectedly left. You will still be paid the base amount. Please click the button below to finish."
	noticeAborted     = "The session had to be stopped. You will still be paid the base amount. Please click the button below to finish."

	noticeInvalidAction     = "Your last input could not be processed: "
	noticeUnavailableAction = "That option is not available right now. Your turn has passed."
)
