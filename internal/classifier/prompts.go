package classifier

const inDomainPrompt = `Analyze the social media username, display name, and bio. Is this user a %s-related influencer (mentions %s)? Respond with ONLY "Yes" or "No".
USERNAME: %s
DISPLAY NAME: %s
BIO: %s`

const secondaryNichePrompt = `Analyze this social media account and classify it into ONE specific niche from the provided list. Base your decision on the bio, hashtags, and tagged users.

PRIMARY NICHE: %s
PRESET OPTIONS: %s

BIO: %q
HASHTAGS: %s
TAGGED USERS: %s

Instructions:
- Return ONLY the most appropriate niche name from the preset list, with its exact wording.
- If no specific niche fits well, return %q.`

const locationPrompt = `You profile social media users. Predict the most likely location (City, Country) where the user is based.

Follow this priority order:
1. The user's self-selected profile region.
2. A location explicitly mentioned in the bio.
3. Location tags on their posts (most frequent or most recent).
4. Hints from their post captions (place names, cultural references).
5. If no location can be determined, return "Global".

PROFILE REGION: %s
BIO: %q
LOCATION TAGS:
%s
POST CAPTIONS:
%s

Return ONLY the location, for example "Dubai, UAE" or "Global". Do not add any explanation.`
