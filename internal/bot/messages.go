package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgOk            = `Ok !`
	MsgUnexpectedErr = `Une erreur est survenue : %s`
	MsgStartPrompt   = "Envoyez une photo de la carte CIN depuis votre galerie, ou tapez /camera pour la cadrer avec le guide."
	MsgVersionInfo   = "Version : %s\nCompilé : %s"
	MsgCancelled     = "Opération annulée."
)

// =============================================================================
// Auth flow messages
// =============================================================================

const (
	MsgLoginPromptEmail     = "Entrez votre adresse e-mail :"
	MsgLoginPromptPassword  = "Entrez votre mot de passe :"
	MsgLoginOTPPrompt       = "%s\n\nEntrez le code OTP reçu :"
	MsgLoginSuccess         = "Connexion réussie !"
	MsgLoginFailed          = "Échec de la connexion : %s"
	MsgOTPFailed            = "Code OTP refusé : %s\n\nRéessayez ou annulez avec /cancel"
	MsgAuthTimeout          = "Délai dépassé. Recommencez avec /login"
	MsgLoginAlreadyLoggedIn = "Vous êtes déjà connecté."
	MsgLoginRequired        = "Vous devez d'abord vous connecter. Utilisez /login ou créez un compte avec /register"
	MsgAuthCancelled        = "Authentification annulée."
	MsgAuthInProgress       = "Authentification en cours. Entrez l'information demandée ou annulez avec /cancel"
	MsgLoggedOut            = "Vous êtes déconnecté."

	MsgRegisterPromptEmail    = "Création de compte. Entrez votre adresse e-mail :"
	MsgRegisterPromptPassword = "Choisissez un mot de passe :"
	MsgRegisterSuccess        = "%s\n\nConnectez-vous avec /login"
	MsgRegisterFailed         = "Échec de l'inscription : %s"

	MsgForgotPromptEmail = "Entrez l'adresse e-mail de votre compte :"
	MsgForgotSuccess     = "%s"
	MsgForgotFailed      = "Échec de la demande : %s"

	MsgFallbackError = "Une erreur est survenue"
)

// =============================================================================
// Capture messages
// =============================================================================

const (
	MsgCameraArmed = `
		Cadrez la carte dans le guide puis envoyez la photo.
		Le guide occupe 90 %% de la largeur de l'aperçu (%.0f × %.0f px), à %.0f px du haut.`
	MsgImageReady       = "Image prête (%d × %d px, %s). Envoyez /send pour l'analyser."
	MsgCaptureFailed    = "La capture de la photo a échoué : %s"
	MsgCropFailed       = "Le recadrage de la photo a échoué : %s"
	MsgNoImage          = "Veuillez capturer ou sélectionner une image."
	MsgImageCleared     = "Image supprimée."
	MsgSubmitInFlight   = "Un envoi est déjà en cours."
	MsgUploadRejected   = "Échec de l'envoi de l'image (statut %d)%s"
	MsgUploadFailed     = "Échec de l'envoi de l'image : %s"
	MsgResultTitle      = "*Résultats OCR :*\n"
	MsgResultEmpty      = "Le service n'a renvoyé aucun champ."
	MsgNoResult         = "Aucun résultat. Envoyez une image puis /send."
	MsgHistoryTitle     = "*Dernières extractions :*\n"
	MsgHistoryEmpty     = "Aucune extraction enregistrée."
	MsgHistoryCleared   = "Historique supprimé (%d extraction(s))."
	MsgPreviewUsage     = "Utilisation : `/preview LARGEURxHAUTEUR` (ex. `/preview 411x731`)"
	MsgPreviewCurrent   = "Aperçu actuel : %.0f × %.0f px.\n\n" + MsgPreviewUsage
	MsgPreviewUpdated   = "Aperçu enregistré : %.0f × %.0f px."
	MsgImageUnsupported = "Ce fichier n'est pas une image."
)

// =============================================================================
// Permission messages
// =============================================================================

const (
	MsgPermissionPromptCamera  = "Autorisez-vous l'accès à la caméra ?"
	MsgPermissionPromptGallery = "Autorisez-vous l'accès à la galerie ?"
	MsgPermissionDeniedCamera  = "Permission refusée. Veuillez autoriser l'accès à la caméra (/revoke camera pour redemander)."
	MsgPermissionDeniedGallery = "Permission refusée. Veuillez autoriser l'accès à la galerie (/revoke gallery pour redemander)."
	MsgPermissionGranted       = "Accès autorisé."
	MsgPermissionRevoked       = "Permission « %s » réinitialisée."
	MsgRevokeUsage             = "Utilisation : `/revoke camera` ou `/revoke gallery`"

	BtnAllow = "Autoriser"
	BtnDeny  = "Refuser"
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Utilisation :\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`"
	MsgAdminUserAddUsage    = "Utilisation : `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Utilisation : `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Identifiant invalide. Entrez un nombre."
	MsgAdminUserAdded       = "✅ Utilisateur `%d` ajouté."
	MsgAdminUserRemoved     = "🗑 Utilisateur `%d` retiré."
	MsgAdminNoUsers         = "Aucun utilisateur autorisé."
	MsgAdminAllowedUsers    = "*Utilisateurs autorisés :*\n"
)
